// Package artifact loads the run artifacts the correlation engine consumes:
// the agent's planning log (ordered planned steps) and the machine-readable
// test outcome. Pure parsing; no matching logic lives here.
//
// Both loaders validate before extracting. A file that fails validation
// surfaces ErrMalformed, which is fatal to the run before correlation begins.
package artifact
