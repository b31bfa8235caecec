package router

import (
	"strings"

	"wordloom/internal/types"
)

// Keyword buckets for the deterministic analysis path. Matching is
// case-insensitive on whitespace/punctuation-split tokens, with a substring
// check for multi-word phrases.

var complexityHighKeywords = []string{"comprehensive", "detailed", "complex", "multi-chapter", "in-depth", "thorough"}
var complexityLowKeywords = []string{"fix", "correct", "simple", "quick", "minor", "small"}

var riskHighKeywords = []string{"delete", "replace all", "overwrite", "discard", "wipe"}
var riskMediumKeywords = []string{"edit", "modify", "rewrite", "restructure", "change"}
var riskLowKeywords = []string{"suggest", "recommend", "highlight", "propose"}

var researchKeywords = []string{"research", "sources", "source", "study", "studies", "evidence", "data", "statistics", "findings"}
var creativityKeywords = []string{"creative", "story", "imaginative", "engaging", "narrative", "vivid", "poem", "fiction"}
var technicalKeywords = []string{"technical", "documentation", "api", "code", "specification", "manual"}
var currentDataKeywords = []string{"latest", "current", "recent", "today", "up-to-date", "news"}
var expertSourceKeywords = []string{"expert", "peer-reviewed", "academic", "journal", "authoritative", "scholarly"}

// analysis is the outcome of the deterministic task-analysis pass.
type analysis struct {
	Complexity types.Complexity
	Risk       types.Risk
	Features   types.RequestFeatures
}

// analyzeRequest classifies complexity, risk, and feature flags from the
// request text using the keyword buckets. Pure and deterministic.
func analyzeRequest(req types.Request) analysis {
	text := strings.ToLower(req.Content + " " + req.Context)
	tokens := tokenSet(text)

	a := analysis{Complexity: types.ComplexityMedium, Risk: types.RiskLow}

	switch {
	case matchesAny(text, tokens, complexityHighKeywords):
		a.Complexity = types.ComplexityHigh
	case matchesAny(text, tokens, complexityLowKeywords):
		a.Complexity = types.ComplexityLow
	}

	switch {
	case matchesAny(text, tokens, riskHighKeywords):
		a.Risk = types.RiskHigh
	case matchesAny(text, tokens, riskMediumKeywords):
		a.Risk = types.RiskMedium
	case matchesAny(text, tokens, riskLowKeywords):
		a.Risk = types.RiskLow
	}

	a.Features = types.RequestFeatures{
		RequiresResearch:      matchesAny(text, tokens, researchKeywords),
		RequiresCreativity:    matchesAny(text, tokens, creativityKeywords),
		RequiresTechnical:     matchesAny(text, tokens, technicalKeywords),
		RequiresCurrentData:   matchesAny(text, tokens, currentDataKeywords),
		RequiresExpertSources: matchesAny(text, tokens, expertSourceKeywords),
		Destructive:           matchesAny(text, tokens, riskHighKeywords),
	}
	// Current-data needs imply research support.
	if a.Features.RequiresCurrentData {
		a.Features.RequiresResearch = true
	}
	return a
}

// tokenSet splits text into lowercase tokens.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-')
	}) {
		set[tok] = true
	}
	return set
}

// matchesAny reports whether any keyword matches: single tokens match the
// token set, phrases match as substrings.
func matchesAny(text string, tokens map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		if tokens[kw] {
			return true
		}
	}
	return false
}

// kindAffinityBonus outweighs a stray keyword hit without drowning a strong
// keyword match. A summarize request lands on the content writer even when
// the text mentions research, which then joins as a supporting worker.
const kindAffinityBonus = 2

// scoreWorker counts keyword overlap between the request tokens and the
// worker's declared keyword set, plus the affinity bonus when the worker
// handles the request's task kind.
func scoreWorker(tokens map[string]bool, kind types.TaskKind, meta types.WorkerMetadata) int {
	score := 0
	for _, kw := range meta.Keywords {
		if tokens[strings.ToLower(kw)] {
			score++
		}
	}
	for _, k := range meta.TaskKinds {
		if k == kind {
			score += kindAffinityBonus
			break
		}
	}
	return score
}
