// Package guardrails runs the three post-workflow checkers over delivered
// content: hallucination verification, quality assessment, and deviation
// monitoring. The checkers run concurrently and never observe each other's
// state; their reports compose into a single acceptance flag.
package guardrails

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wordloom/internal/config"
	"wordloom/internal/guardrails/deviation"
	"wordloom/internal/guardrails/hallucination"
	"wordloom/internal/guardrails/quality"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Result bundles the three checker reports with the composite acceptance flag.
type Result struct {
	Hallucination *hallucination.Report `json:"hallucination"`
	Quality       *quality.Report       `json:"quality"`
	Deviation     *deviation.Report     `json:"deviation"`
	Accepted      bool                  `json:"accepted"`
	Elapsed       time.Duration         `json:"elapsed_ns"`
}

// Input describes the content under review.
type Input struct {
	Content     string
	ContentType types.ContentType
	Level       types.VerificationLevel
	WorkerID    types.WorkerID
	ProjectID   string
}

// Pipeline owns the three checkers. Safe for concurrent use.
type Pipeline struct {
	mu  sync.RWMutex
	cfg config.GuardrailsConfig // replaceable via ApplyConfig

	hallucination *hallucination.Checker
	quality       *quality.Assessor
	deviation     *deviation.Monitor
}

// New creates a pipeline. gen may be nil; every checker degrades to its
// deterministic path.
func New(cfg config.GuardrailsConfig, gen types.GenerationBackend, objectives *deviation.Registry) *Pipeline {
	return &Pipeline{
		cfg:           cfg,
		hallucination: hallucination.NewChecker(cfg, gen),
		quality:       quality.NewAssessor(cfg, gen),
		deviation:     deviation.NewMonitor(cfg, gen, objectives),
	}
}

// Objectives exposes the deviation monitor's registry.
func (p *Pipeline) Objectives() *deviation.Registry { return p.deviation.Registry() }

// ApplyConfig replaces the acceptance tunables, typically from a config
// reload. The checkers keep the settings they were constructed with.
func (p *Pipeline) ApplyConfig(cfg config.GuardrailsConfig) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// Run executes all three checkers concurrently and composes the result.
// Checkers recover their own sub-call failures, so Run itself cannot fail.
func (p *Pipeline) Run(ctx context.Context, in Input) *Result {
	start := time.Now()
	res := &Result{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Hallucination = p.hallucination.Check(gctx, in.Content, in.Level)
		return nil
	})
	g.Go(func() error {
		res.Quality = p.quality.Assess(gctx, in.Content, in.ContentType, in.WorkerID)
		return nil
	})
	g.Go(func() error {
		res.Deviation = p.deviation.Check(gctx, in.Content, in.ProjectID)
		return nil
	})
	// Checkers always return nil; Wait only joins them.
	_ = g.Wait()

	res.Elapsed = time.Since(start)
	res.Accepted = p.accept(res, in.Level)
	logging.Guardrail("guardrail pipeline accepted=%t risk=%.2f quality=%.2f deviation=%s elapsed=%v",
		res.Accepted, res.Hallucination.RiskScore, res.Quality.OverallScore,
		res.Deviation.OverallRiskLevel, res.Elapsed)
	return res
}

// accept computes the composite acceptance flag. A critical verification
// level with unresolved needs_review claims always fails acceptance.
func (p *Pipeline) accept(res *Result, level types.VerificationLevel) bool {
	p.mu.RLock()
	riskMax := p.cfg.HallucinationRiskMax
	p.mu.RUnlock()
	if riskMax <= 0 {
		riskMax = 0.3
	}
	if level == types.VerificationCritical && res.Hallucination.NeedsReviewCount() > 0 {
		return false
	}
	return res.Hallucination.RiskScore < riskMax &&
		res.Quality.MeetsThreshold() &&
		res.Deviation.Acceptable()
}
