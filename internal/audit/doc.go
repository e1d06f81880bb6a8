// Package audit defines the shared data model for a test-execution audit run:
// planned steps, detected video events, test outcomes, and the match results
// the correlation engine derives from them.
//
// All values in this package are created once per analysis run and treated as
// immutable by downstream components. The engine tracks event consumption in
// its own bookkeeping; it never mutates a VideoEvent.
package audit
