package hallucination

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// ClaimCategory classifies what kind of factual assertion a claim makes.
type ClaimCategory string

const (
	ClaimStatistic ClaimCategory = "statistic"
	ClaimDate      ClaimCategory = "date"
	ClaimQuote     ClaimCategory = "quote"
	ClaimFact      ClaimCategory = "fact"
	ClaimOther     ClaimCategory = "other"
)

// Span is a character range within the reviewed content.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Claim is one extracted factual assertion.
type Claim struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Category   ClaimCategory `json:"category"`
	Confidence float64       `json:"confidence"`
	Sentence   string        `json:"sentence"`
	Span       Span          `json:"span"`
}

// patternConfidence is assigned to every regex-extracted claim.
const patternConfidence = 0.7

// Regex families for the pattern pass. Quoted spans are bounded to 20-200
// chars so attribution fragments don't flood the claim list.
var (
	reStatistics = []*regexp.Regexp{
		regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:%|percent|percentage points?)\b`),
		regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b`),
		regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:million|billion|trillion|thousand)\b`),
		regexp.MustCompile(`\b(?:more|less|fewer|greater|higher|lower)\s+than\s+\d+(?:[.,]\d+)*\b`),
	}
	reDates = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,\s*\d{4})?\b`),
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
		regexp.MustCompile(`\b(?:in|by|since|until|during|before|after)\s+(?:1[0-9]{3}|2[0-9]{3})\b`),
	}
	reQuotes = []*regexp.Regexp{
		regexp.MustCompile(`"[^"]{20,200}"`),
		regexp.MustCompile(`\b(?:said|stated|according to|claimed|reported)\b[^.!?]{10,150}`),
	}
	reFacts = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:the\s+(?:first|largest|biggest|smallest|oldest|newest|only|most\s+\w+|best|worst))\b[^.!?]{5,120}`),
		regexp.MustCompile(`\b(?:founded|established|created|invented|discovered)\s+in\s+\d{4}\b`),
	}
)

// extractPatternClaims runs the regex families against the content. Each
// match becomes a claim with fixed confidence and its character span.
func extractPatternClaims(content string) []Claim {
	type family struct {
		category ClaimCategory
		regexes  []*regexp.Regexp
	}
	families := []family{
		{ClaimStatistic, reStatistics},
		{ClaimDate, reDates},
		{ClaimQuote, reQuotes},
		{ClaimFact, reFacts},
	}

	var claims []Claim
	n := 0
	for _, fam := range families {
		for _, re := range fam.regexes {
			for _, loc := range re.FindAllStringIndex(content, -1) {
				n++
				claims = append(claims, Claim{
					ID:         fmt.Sprintf("p%d", n),
					Text:       content[loc[0]:loc[1]],
					Category:   fam.category,
					Confidence: patternConfidence,
					Sentence:   enclosingSentence(content, loc[0]),
					Span:       Span{Start: loc[0], End: loc[1]},
				})
			}
		}
	}
	return claims
}

// enclosingSentence returns the sentence containing position pos.
func enclosingSentence(content string, pos int) string {
	start := 0
	for i := pos - 1; i >= 0; i-- {
		if c := content[i]; c == '.' || c == '!' || c == '?' || c == '\n' {
			start = i + 1
			break
		}
	}
	end := len(content)
	for i := pos; i < len(content); i++ {
		if c := content[i]; c == '.' || c == '!' || c == '?' || c == '\n' {
			end = i + 1
			break
		}
	}
	return strings.TrimSpace(content[start:end])
}

// semanticClaim is the JSON shape requested from the backend.
type semanticClaim struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// extractSemanticClaims makes one backend call asking for up to max claims.
// Any failure returns nil; the pattern pass always covers extraction.
func extractSemanticClaims(ctx context.Context, gen types.GenerationBackend, content string, max int) []Claim {
	if gen == nil || max <= 0 {
		return nil
	}
	prompt := fmt.Sprintf(
		`Extract the factual claims from the following text. Return a JSON array of at most %d objects, each {"text": string, "category": "statistic"|"date"|"quote"|"fact"|"other", "confidence": number in [0,1]}. Return only the JSON array.

Text:
%s`, max, clip(content, 4000))

	resp, err := gen.Generate(ctx, types.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   1500,
		Temperature: 0.1,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		logging.GuardrailDebug("semantic claim extraction failed: %v", err)
		return nil
	}

	var raw []semanticClaim
	if err := json.Unmarshal([]byte(extractJSONArray(resp.Content)), &raw); err != nil {
		logging.GuardrailDebug("semantic claim extraction returned unparseable JSON: %v", err)
		return nil
	}
	if len(raw) > max {
		raw = raw[:max]
	}

	var claims []Claim
	for i, sc := range raw {
		text := strings.TrimSpace(sc.Text)
		if text == "" {
			continue
		}
		conf := sc.Confidence
		if conf < 0 || conf > 1 {
			conf = 0.5
		}
		c := Claim{
			ID:         fmt.Sprintf("s%d", i+1),
			Text:       text,
			Category:   parseCategory(sc.Category),
			Confidence: conf,
		}
		if idx := strings.Index(content, text); idx >= 0 {
			c.Span = Span{Start: idx, End: idx + len(text)}
			c.Sentence = enclosingSentence(content, idx)
		}
		claims = append(claims, c)
	}
	return claims
}

func parseCategory(s string) ClaimCategory {
	switch ClaimCategory(strings.ToLower(strings.TrimSpace(s))) {
	case ClaimStatistic, ClaimDate, ClaimQuote, ClaimFact:
		return ClaimCategory(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ClaimOther
	}
}

// dedupeClaims normalizes claim text, keeps first occurrences, and caps the
// total claim count.
func dedupeClaims(claims []Claim, cap int) []Claim {
	seen := make(map[string]bool, len(claims))
	var out []Claim
	for _, c := range claims {
		key := normalizeClaim(c.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if cap > 0 && len(out) == cap {
			break
		}
	}
	return out
}

// normalizeClaim lowercases and collapses whitespace.
func normalizeClaim(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// extractJSONArray trims surrounding prose from a backend answer that should
// contain a JSON array.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
