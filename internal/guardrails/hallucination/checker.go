// Package hallucination extracts factual claims from reviewed content and
// verifies them at a configurable depth. Pattern and semantic extraction run
// concurrently; verification results are cached process-wide by normalized
// claim text.
package hallucination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wordloom/internal/config"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Report is the immutable output of one hallucination check.
type Report struct {
	Claims            []Claim              `json:"claims"`
	Results           []VerificationResult `json:"results"`
	OverallConfidence float64              `json:"overall_confidence"`
	RiskScore         float64              `json:"risk_score"`
	Level             types.VerificationLevel `json:"verification_level"`
	Recommendations   []string             `json:"recommendations,omitempty"`
	CheckedAt         time.Time            `json:"checked_at"`
}

// Checker runs the hallucination pipeline. Safe for concurrent use; the
// verification cache is shared across checks.
type Checker struct {
	cfg   config.GuardrailsConfig
	gen   types.GenerationBackend
	cache *verificationCache
	now   func() time.Time
}

// NewChecker creates a checker. gen may be nil; checks then run in
// pattern-and-heuristic mode regardless of the requested level.
func NewChecker(cfg config.GuardrailsConfig, gen types.GenerationBackend) *Checker {
	return &Checker{
		cfg:   cfg,
		gen:   gen,
		cache: newVerificationCache(cfg.VerificationCacheCap),
		now:   time.Now,
	}
}

// Check extracts and verifies claims in the content at the given level.
func (c *Checker) Check(ctx context.Context, content string, level types.VerificationLevel) *Report {
	if !level.Valid() {
		level = types.VerificationStandard
	}

	// Extraction sub-passes run concurrently; a failure in one never
	// cancels the other.
	var patternClaims, semanticClaims []Claim
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		patternClaims = extractPatternClaims(content)
	}()
	if level != types.VerificationBasic && c.gen != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semanticClaims = extractSemanticClaims(ctx, c.gen, content, c.cfg.MaxSemanticClaims)
		}()
	}
	wg.Wait()

	claims := dedupeClaims(append(patternClaims, semanticClaims...), c.cfg.MaxClaims)

	results := make([]VerificationResult, len(claims))
	for i, claim := range claims {
		results[i] = c.verify(ctx, claim, level)
	}

	report := &Report{
		Claims:    claims,
		Results:   results,
		Level:     level,
		CheckedAt: c.now(),
	}
	report.aggregate()
	logging.Guardrail("hallucination check level=%s claims=%d risk=%.2f confidence=%.2f",
		level, len(claims), report.RiskScore, report.OverallConfidence)
	return report
}

// verify applies the level's verification strategy to one claim.
func (c *Checker) verify(ctx context.Context, claim Claim, level types.VerificationLevel) VerificationResult {
	switch level {
	case types.VerificationCritical:
		// Force human review of every claim.
		return VerificationResult{
			ClaimID:     claim.ID,
			Verdict:     VerdictNeedsReview,
			Confidence:  0,
			Explanation: "critical verification level requires human review",
		}
	case types.VerificationBasic:
		return verifyHeuristic(claim, c.now())
	}

	if c.gen == nil {
		return verifyHeuristic(claim, c.now())
	}

	key := claimKey(claim.Text)
	res, hit := c.cache.get(key)
	if !hit {
		res = verifyWithBackend(ctx, c.gen, claim)
		c.cache.put(key, res)
	}
	res.ClaimID = claim.ID

	if level == types.VerificationComprehensive && res.Confidence < 0.7 && res.Verdict != VerdictNeedsReview {
		res.Verdict = VerdictNeedsReview
		res.Explanation = fmt.Sprintf("confidence %.2f below comprehensive threshold; %s", res.Confidence, res.Explanation)
	}
	return res
}

// aggregate computes overall confidence, the risk score, and recommendations.
// Risk is 0 exactly when no claims are present.
func (r *Report) aggregate() {
	if len(r.Results) == 0 {
		r.OverallConfidence = 1.0
		r.RiskScore = 0
		return
	}

	var confSum float64
	var falseN, disputedN, reviewN int
	for _, res := range r.Results {
		confSum += res.Confidence
		switch res.Verdict {
		case VerdictFalse:
			falseN++
		case VerdictDisputed:
			disputedN++
		case VerdictNeedsReview:
			reviewN++
		}
	}
	total := float64(len(r.Results))
	r.OverallConfidence = confSum / total
	r.RiskScore = (float64(falseN)*1.0 + float64(disputedN)*0.7 + float64(reviewN)*0.5) / total

	if falseN > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("remove or correct %d false claim(s)", falseN))
	}
	if disputedN > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("add sources for %d disputed claim(s)", disputedN))
	}
	if reviewN > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("have a human review %d flagged claim(s)", reviewN))
	}
}

// NeedsReviewCount reports how many claims ended in needs_review.
func (r *Report) NeedsReviewCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Verdict == VerdictNeedsReview {
			n++
		}
	}
	return n
}

// CacheLen exposes the verification cache size for diagnostics.
func (c *Checker) CacheLen() int { return c.cache.len() }
