package guardrails

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordloom/internal/config"
	"wordloom/internal/guardrails/deviation"
	"wordloom/internal/guardrails/hallucination"
	"wordloom/internal/guardrails/quality"
	"wordloom/internal/types"
)

func newTestPipeline() *Pipeline {
	return New(config.Default().Guardrails, nil, nil)
}

func TestRunProducesAllThreeReports(t *testing.T) {
	p := newTestPipeline()

	res := p.Run(context.Background(), Input{
		Content:     "A short clean note about the weekly schedule. Everyone reads it quickly.",
		ContentType: types.ContentEmail,
		Level:       types.VerificationBasic,
	})

	require.NotNil(t, res.Hallucination)
	require.NotNil(t, res.Quality)
	require.NotNil(t, res.Deviation)
	assert.Positive(t, res.Elapsed)
}

func TestAcceptanceHappyPath(t *testing.T) {
	p := newTestPipeline()

	res := p.Run(context.Background(), Input{
		Content:     "A short clean note about the weekly schedule. Everyone reads it quickly.",
		ContentType: types.ContentEmail,
		Level:       types.VerificationBasic,
	})

	assert.Zero(t, res.Hallucination.RiskScore)
	assert.True(t, res.Quality.MeetsThreshold())
	assert.Equal(t, deviation.RiskLow, res.Deviation.OverallRiskLevel)
	assert.True(t, res.Accepted)
}

func TestCriticalLevelWithClaimsBlocks(t *testing.T) {
	p := newTestPipeline()

	res := p.Run(context.Background(), Input{
		Content:     "The plant was founded in 1952 and output grew by 45% since then.",
		ContentType: types.ContentEmail,
		Level:       types.VerificationCritical,
	})

	assert.Positive(t, res.Hallucination.NeedsReviewCount())
	assert.False(t, res.Accepted)
}

func TestAcceptComposite(t *testing.T) {
	p := newTestPipeline()

	good := func() *Result {
		return &Result{
			Hallucination: &hallucination.Report{RiskScore: 0.1},
			Quality:       &quality.Report{ContentType: types.ContentEmail, OverallScore: 3.5},
			Deviation:     &deviation.Report{OverallRiskLevel: deviation.RiskLow},
		}
	}

	assert.True(t, p.accept(good(), types.VerificationStandard))

	tooRisky := good()
	tooRisky.Hallucination.RiskScore = 0.31
	assert.False(t, p.accept(tooRisky, types.VerificationStandard))

	lowQuality := good()
	lowQuality.Quality.OverallScore = 2.9 // email threshold is 3.0
	assert.False(t, p.accept(lowQuality, types.VerificationStandard))

	drifting := good()
	drifting.Deviation.OverallRiskLevel = deviation.RiskHigh
	assert.False(t, p.accept(drifting, types.VerificationStandard))

	mediumDrift := good()
	mediumDrift.Deviation.OverallRiskLevel = deviation.RiskMedium
	assert.True(t, p.accept(mediumDrift, types.VerificationStandard))

	reviewed := good()
	reviewed.Hallucination.Results = []hallucination.VerificationResult{
		{Verdict: hallucination.VerdictNeedsReview},
	}
	assert.False(t, p.accept(reviewed, types.VerificationCritical))
	assert.True(t, p.accept(reviewed, types.VerificationStandard))
}

func TestApplyConfigTightensRiskGate(t *testing.T) {
	p := newTestPipeline()

	res := &Result{
		Hallucination: &hallucination.Report{RiskScore: 0.25},
		Quality:       &quality.Report{ContentType: types.ContentEmail, OverallScore: 3.5},
		Deviation:     &deviation.Report{OverallRiskLevel: deviation.RiskLow},
	}
	assert.True(t, p.accept(res, types.VerificationStandard))

	reloaded := config.Default().Guardrails
	reloaded.HallucinationRiskMax = 0.2
	p.ApplyConfig(reloaded)
	assert.False(t, p.accept(res, types.VerificationStandard))
}

func TestObjectivesRegistryShared(t *testing.T) {
	reg := deviation.NewRegistry()
	p := New(config.Default().Guardrails, nil, reg)
	assert.Same(t, reg, p.Objectives())
}
