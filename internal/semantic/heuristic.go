package semantic

import (
	"context"
	"strings"
)

// HeuristicMatcher scores with lexical term overlap. Deterministic and
// offline: the default backend, and the one tests reach for.
//
// A visual event context ("scene_change at 4.2s ...") rarely shares literal
// vocabulary with a step description, so raw overlap alone would score almost
// everything zero. The heuristic therefore blends a base plausibility (an
// event of any kind is weak evidence that something happened on screen) with
// the overlap bonus for descriptions that do mention what the event shows.
type HeuristicMatcher struct{}

// NewHeuristicMatcher creates a HeuristicMatcher.
func NewHeuristicMatcher() *HeuristicMatcher {
	return &HeuristicMatcher{}
}

const (
	// heuristicBase is the score for any event with no lexical signal.
	heuristicBase = 0.55
	// heuristicOverlapWeight scales the overlap bonus on top of the base.
	heuristicOverlapWeight = 1 - heuristicBase
)

// Score implements Matcher. Never fails.
func (m *HeuristicMatcher) Score(_ context.Context, stepDescription, eventContext string) (float64, error) {
	stepTokens := tokenize(stepDescription)
	eventTokens := tokenize(eventContext)
	if len(stepTokens) == 0 || len(eventTokens) == 0 {
		return heuristicBase, nil
	}
	return heuristicBase + heuristicOverlapWeight*termOverlap(stepTokens, eventTokens), nil
}

// tokenize splits text into lowercase terms, filtering out common stopwords
// and terms shorter than three runes.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isStopword(token) && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

// isAlphanumeric returns true if the rune is a letter or digit. Underscores
// split, so snake_case event kinds tokenize into their words.
func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// isStopword returns true if the token is a common English stopword.
func isStopword(token string) bool {
	stopwords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
		"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
		"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
		"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
		"that": true, "these": true, "those": true, "it": true, "what": true, "which": true,
		"when": true, "where": true, "how": true,
	}
	return stopwords[token]
}

// termOverlap is the fraction of unique query terms present in the candidate
// token set, in [0, 1].
func termOverlap(queryTokens, candidateTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	candidateSet := make(map[string]bool, len(candidateTokens))
	for _, token := range candidateTokens {
		candidateSet[token] = true
	}

	matchCount := 0
	counted := make(map[string]bool, len(queryTokens))
	unique := 0
	for _, token := range queryTokens {
		if counted[token] {
			continue
		}
		counted[token] = true
		unique++
		if candidateSet[token] {
			matchCount++
		}
	}
	return float64(matchCount) / float64(unique)
}
