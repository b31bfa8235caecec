package hallucination

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Verdict is the outcome of verifying one claim.
type Verdict string

const (
	VerdictVerified     Verdict = "verified"
	VerdictDisputed     Verdict = "disputed"
	VerdictUnverifiable Verdict = "unverifiable"
	VerdictFalse        Verdict = "false"
	VerdictNeedsReview  Verdict = "needs_review"
)

// VerificationResult is the verdict for one claim.
type VerificationResult struct {
	ClaimID             string   `json:"claim_id"`
	Verdict             Verdict  `json:"verdict"`
	Confidence          float64  `json:"confidence"`
	Explanation         string   `json:"explanation"`
	SuggestedCorrection string   `json:"suggested_correction,omitempty"`
	Sources             []string `json:"sources,omitempty"`
}

// verifyHeuristic applies the rule-only checks used at the basic level:
// future years are false, absolute percentages and implausibly old dates are
// disputed, everything else passes unreviewed.
func verifyHeuristic(c Claim, now time.Time) VerificationResult {
	res := VerificationResult{
		ClaimID:     c.ID,
		Verdict:     VerdictVerified,
		Confidence:  0.6,
		Explanation: "heuristic check passed",
	}

	for _, tok := range strings.Fields(c.Text) {
		digits := strings.TrimFunc(tok, func(r rune) bool { return r < '0' || r > '9' })
		// Three digits covers early years, four the modern range.
		if len(digits) < 3 || len(digits) > 4 {
			continue
		}
		year, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		switch {
		case year > now.Year():
			return VerificationResult{
				ClaimID:     c.ID,
				Verdict:     VerdictFalse,
				Confidence:  0.9,
				Explanation: fmt.Sprintf("year %d is in the future", year),
			}
		case year < 1000 && c.Category == ClaimDate:
			return VerificationResult{
				ClaimID:     c.ID,
				Verdict:     VerdictDisputed,
				Confidence:  0.5,
				Explanation: fmt.Sprintf("year %d predates reliable records", year),
			}
		}
	}

	if c.Category == ClaimStatistic {
		lower := strings.ToLower(c.Text)
		if strings.Contains(lower, "100%") || strings.Contains(lower, "0%") ||
			strings.Contains(lower, "100 percent") || strings.Contains(lower, "0 percent") {
			return VerificationResult{
				ClaimID:     c.ID,
				Verdict:     VerdictDisputed,
				Confidence:  0.5,
				Explanation: "absolute percentage claims are rarely accurate",
			}
		}
	}
	return res
}

// backendVerdict is the JSON shape requested from the backend per claim.
type backendVerdict struct {
	Verdict     string   `json:"verdict"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Correction  string   `json:"correction,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

// verifyWithBackend performs one backend verification call for a claim. The
// caller handles caching; failures degrade to needs_review with the cause.
func verifyWithBackend(ctx context.Context, gen types.GenerationBackend, c Claim) VerificationResult {
	prompt := fmt.Sprintf(
		`Verify the following claim. Respond with a single JSON object {"verdict": "verified"|"disputed"|"unverifiable"|"false", "confidence": number in [0,1], "explanation": string, "correction": string (optional), "sources": [string] (optional)}.

Claim: %s
Context sentence: %s`, c.Text, c.Sentence)

	resp, err := gen.Generate(ctx, types.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   400,
		Temperature: 0.1,
		Timeout:     20 * time.Second,
	})
	if err != nil {
		logging.GuardrailDebug("claim %s verification failed: %v", c.ID, err)
		return VerificationResult{
			ClaimID:     c.ID,
			Verdict:     VerdictNeedsReview,
			Confidence:  0.3,
			Explanation: fmt.Sprintf("verification call failed: %v", err),
		}
	}

	var bv backendVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &bv); err != nil {
		return VerificationResult{
			ClaimID:     c.ID,
			Verdict:     VerdictNeedsReview,
			Confidence:  0.3,
			Explanation: fmt.Sprintf("verification response unparseable: %v", err),
		}
	}

	verdict := parseVerdict(bv.Verdict)
	conf := bv.Confidence
	if conf < 0 || conf > 1 {
		conf = 0.5
	}
	return VerificationResult{
		ClaimID:             c.ID,
		Verdict:             verdict,
		Confidence:          conf,
		Explanation:         bv.Explanation,
		SuggestedCorrection: bv.Correction,
		Sources:             bv.Sources,
	}
}

func parseVerdict(s string) Verdict {
	switch Verdict(strings.ToLower(strings.TrimSpace(s))) {
	case VerdictVerified, VerdictDisputed, VerdictUnverifiable, VerdictFalse, VerdictNeedsReview:
		return Verdict(strings.ToLower(strings.TrimSpace(s)))
	default:
		return VerdictUnverifiable
	}
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
