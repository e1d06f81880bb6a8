// Package pipeline orchestrates a full audit run as a state machine over the
// artifact loaders, the event extractor and the correlation engine. States
// advance strictly forward; any unrecoverable dependency failure moves the
// run to the error state and no partial results are returned.
package pipeline
