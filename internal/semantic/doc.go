// Package semantic judges how plausibly a detected video event corroborates a
// planned step description.
//
// The Matcher interface is the capability boundary the correlation engine
// depends on. Two backends ship: a deterministic term-overlap heuristic and a
// rate-limited Anthropic API client. Engine correctness never depends on which
// backend is wired in; tests use the heuristic or a fixed-score stub.
package semantic
