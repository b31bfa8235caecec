package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"wordloom/internal/types"
)

// Dimension is one of the ten assessed quality dimensions.
type Dimension string

const (
	DimClarity      Dimension = "clarity"
	DimCoherence    Dimension = "coherence"
	DimGrammar      Dimension = "grammar"
	DimStyle        Dimension = "style"
	DimAccuracy     Dimension = "accuracy"
	DimCompleteness Dimension = "completeness"
	DimEngagement   Dimension = "engagement"
	DimStructure    Dimension = "structure"
	DimTone         Dimension = "tone"
	DimReadability  Dimension = "readability"
)

// AllDimensions lists the assessed dimensions in report order.
var AllDimensions = []Dimension{
	DimClarity, DimCoherence, DimGrammar, DimStyle, DimAccuracy,
	DimCompleteness, DimEngagement, DimStructure, DimTone, DimReadability,
}

// Level is the qualitative band derived from a score.
type Level string

const (
	LevelExcellent    Level = "excellent"
	LevelGood         Level = "good"
	LevelAcceptable   Level = "acceptable"
	LevelPoor         Level = "poor"
	LevelUnacceptable Level = "unacceptable"
)

// LevelFor maps a 0-5 score to its band. The mapping is monotone.
func LevelFor(score float64) Level {
	switch {
	case score >= 4.5:
		return LevelExcellent
	case score >= 3.5:
		return LevelGood
	case score >= 2.5:
		return LevelAcceptable
	case score >= 1.5:
		return LevelPoor
	default:
		return LevelUnacceptable
	}
}

// wordRange is the expected word-count window per content type.
type wordRange struct{ min, max int }

var expectedWords = map[types.ContentType]wordRange{
	types.ContentArticle:     {800, 2000},
	types.ContentBlogPost:    {500, 1500},
	types.ContentAcademic:    {3000, 8000},
	types.ContentBusiness:    {500, 2000},
	types.ContentTechnical:   {1000, 3000},
	types.ContentLegal:       {1000, 5000},
	types.ContentMedical:     {1000, 3000},
	types.ContentCreative:    {1000, 5000},
	types.ContentEmail:       {50, 300},
	types.ContentSocialMedia: {10, 280},
}

// AcceptanceThreshold returns the minimum overall quality score for the
// content type's acceptance gate.
func AcceptanceThreshold(ct types.ContentType) float64 {
	switch ct {
	case types.ContentAcademic, types.ContentLegal, types.ContentMedical:
		return 4.5
	case types.ContentBusiness, types.ContentTechnical:
		return 4.0
	case types.ContentArticle, types.ContentCreative:
		return 3.5
	case types.ContentBlogPost, types.ContentEmail:
		return 3.0
	case types.ContentSocialMedia:
		return 2.5
	default:
		return 3.5
	}
}

var (
	reDoubleSpace  = regexp.MustCompile(`[^\S\n]{2,}`)
	rePassiveVoice = regexp.MustCompile(`\b(?:is|are|was|were|been|being|be)\s+\w+(?:ed|en)\b`)
	reGrammarSlips = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:their|there|they're)\s+(?:is|are)\s+(?:their|there|they're)\b`),
		regexp.MustCompile(`\b(\w+)\s+\1\b`), // immediate word repetition
		regexp.MustCompile(`\s+[,.;:]`),
		regexp.MustCompile(`[a-z]\.[A-Z]`), // missing space after period
	}
	reHeading = regexp.MustCompile(`(?m)^(?:#{1,6}\s+\S|[A-Z][^.!?\n]{2,60}$)`)
)

// ruleScores computes the deterministic dimension scores. Only the four
// dimensions with usable heuristics are scored; the rest come from the AI
// pass alone.
func ruleScores(content string, m TextMetrics, ct types.ContentType) map[Dimension]float64 {
	return map[Dimension]float64{
		DimGrammar:      grammarScore(content, m),
		DimReadability:  readabilityScore(m.GradeLevel),
		DimStructure:    structureScore(content, m),
		DimCompleteness: completenessScore(m, ct),
	}
}

// grammarScore starts at 5 and deducts per detected slip, normalized by
// content length.
func grammarScore(content string, m TextMetrics) float64 {
	if m.Words == 0 {
		return 0
	}
	slips := 0
	for _, re := range reGrammarSlips {
		slips += len(re.FindAllString(content, -1))
	}
	errorRate := float64(slips) / float64(m.Words) * 100
	return clamp(5-errorRate*2, 0, 5)
}

// structureScore rewards paragraphs within the 30-150 word band, headings in
// long documents, and sentence-length variety.
func structureScore(content string, m TextMetrics) float64 {
	if m.Words == 0 {
		return 0
	}
	score := 5.0

	paragraphs := strings.Split(content, "\n\n")
	outOfBand := 0
	nonEmpty := 0
	for _, p := range paragraphs {
		words := len(strings.Fields(p))
		if words == 0 {
			continue
		}
		nonEmpty++
		if words < 30 || words > 150 {
			outOfBand++
		}
	}
	if nonEmpty > 0 {
		score -= 2 * float64(outOfBand) / float64(nonEmpty)
	}

	if m.Words > 500 && !reHeading.MatchString(content) {
		score -= 1
	}

	if variety := sentenceLengthVariety(content); variety < 3 && m.Sentences >= 5 {
		score -= 0.5
	}
	return clamp(score, 0, 5)
}

// sentenceLengthVariety returns the spread between the longest and shortest
// sentence word counts.
func sentenceLengthVariety(content string) int {
	shortest, longest := -1, 0
	for _, s := range splitSentences(content) {
		n := len(strings.Fields(s))
		if n == 0 {
			continue
		}
		if shortest < 0 || n < shortest {
			shortest = n
		}
		if n > longest {
			longest = n
		}
	}
	if shortest < 0 {
		return 0
	}
	return longest - shortest
}

func splitSentences(content string) []string {
	return strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}

// completenessScore compares the word count against the content type's
// expected range. Inside the range scores 5; the score decays linearly with
// the shortfall or overrun.
func completenessScore(m TextMetrics, ct types.ContentType) float64 {
	rng, ok := expectedWords[ct]
	if !ok {
		return 3
	}
	switch {
	case m.Words >= rng.min && m.Words <= rng.max:
		return 5
	case m.Words < rng.min:
		return clamp(5*float64(m.Words)/float64(rng.min), 0, 5)
	default:
		overrun := float64(m.Words-rng.max) / float64(rng.max)
		return clamp(5-overrun*5, 0, 5)
	}
}

// Issue is one identified quality problem.
type Issue struct {
	Dimension   Dimension `json:"dimension"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"` // minor, moderate, major
	Location    string    `json:"location,omitempty"`
}

// ruleIssues runs the deterministic issue detectors.
func ruleIssues(content string) []Issue {
	var issues []Issue

	if n := len(reDoubleSpace.FindAllString(content, -1)); n > 0 {
		issues = append(issues, Issue{
			Dimension:   DimGrammar,
			Description: fmt.Sprintf("%d occurrence(s) of doubled spaces", n),
			Severity:    "minor",
		})
	}

	longSentences := 0
	for _, s := range splitSentences(content) {
		if len(strings.Fields(s)) > 35 {
			longSentences++
		}
	}
	if longSentences > 0 {
		issues = append(issues, Issue{
			Dimension:   DimReadability,
			Description: fmt.Sprintf("%d sentence(s) longer than 35 words", longSentences),
			Severity:    "moderate",
		})
	}

	if n := len(rePassiveVoice.FindAllString(content, -1)); n > 3 {
		issues = append(issues, Issue{
			Dimension:   DimStyle,
			Description: fmt.Sprintf("frequent passive voice (%d instances)", n),
			Severity:    "minor",
		})
	}

	counts := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(content)) {
		clean := strings.Trim(w, ".,;:!?\"'()")
		if len(clean) > 4 {
			counts[clean]++
		}
	}
	var repeated []string
	for word, n := range counts {
		if n > 10 {
			repeated = append(repeated, word)
		}
	}
	sort.Strings(repeated)
	for _, word := range repeated {
		issues = append(issues, Issue{
			Dimension:   DimStyle,
			Description: fmt.Sprintf("word %q repeated %d times", word, counts[word]),
			Severity:    "minor",
		})
	}
	return issues
}

// dedupeIssues removes issues with identical normalized descriptions.
func dedupeIssues(issues []Issue) []Issue {
	seen := make(map[string]bool, len(issues))
	var out []Issue
	for _, is := range issues {
		key := strings.Join(strings.Fields(strings.ToLower(is.Description)), " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, is)
	}
	return out
}
