// Package engine aligns planned steps against detected video events and
// decides which steps lack visual corroboration.
//
// Alignment is monotone and windowed: a forward-only cursor walks the event
// timeline while steps are processed in planned order, so the engine encodes
// the assumption that a recording is one linear timeline and steps execute in
// plan order. Each step sees a bounded window of events past the cursor,
// scored by the semantic matcher and weighted by temporal proximity; the
// winning candidate commits only when its combined confidence clears the
// configured threshold.
package engine
