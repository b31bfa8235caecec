package quality

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordloom/internal/config"
	"wordloom/internal/types"
)

type mockBackend struct {
	content string
	err     error
}

func (m *mockBackend) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &types.GenerateResponse{Content: m.content, FinishReason: "STOP"}, nil
}

func TestCountSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"cat", 1},
		{"make", 1},   // trailing silent e
		{"table", 2},  // -le keeps its syllable
		{"syllable", 3},
		{"rhythm", 1},
		{"idea", 2},
		{"queue", 1},
		{"strength", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countSyllables(tt.word), tt.word)
	}
}

func TestComputeMetricsSimpleText(t *testing.T) {
	m := computeMetrics("The cat sat on the mat.")
	assert.Equal(t, 6, m.Words)
	assert.Equal(t, 1, m.Sentences)
	assert.Equal(t, 1, m.Paragraphs)
	assert.Equal(t, 5, m.UniqueWords) // "the" appears twice
	assert.InDelta(t, 6.0, m.AvgSentenceLen, 0.001)
	assert.InDelta(t, 1.0, m.AvgSyllables, 0.001)
	// 0.39*6 + 11.8*1 - 15.59 is negative, so the grade floors at zero.
	assert.Zero(t, m.GradeLevel)
}

func TestReadabilityScoreBands(t *testing.T) {
	assert.InDelta(t, 5.0, readabilityScore(8), 0.001)
	assert.InDelta(t, 4.0, readabilityScore(12), 0.001)
	assert.InDelta(t, 0.0, readabilityScore(28), 0.001)
	assert.InDelta(t, 5.0, readabilityScore(0), 0.001) // clamped high
}

func TestLevelForMonotone(t *testing.T) {
	assert.Equal(t, LevelExcellent, LevelFor(4.5))
	assert.Equal(t, LevelGood, LevelFor(3.5))
	assert.Equal(t, LevelAcceptable, LevelFor(2.5))
	assert.Equal(t, LevelPoor, LevelFor(1.5))
	assert.Equal(t, LevelUnacceptable, LevelFor(1.49))

	prev := LevelFor(0)
	order := map[Level]int{
		LevelUnacceptable: 0, LevelPoor: 1, LevelAcceptable: 2, LevelGood: 3, LevelExcellent: 4,
	}
	for s := 0.0; s <= 5.0; s += 0.1 {
		cur := LevelFor(s)
		assert.GreaterOrEqual(t, order[cur], order[prev], "score %.1f", s)
		prev = cur
	}
}

func TestCompletenessScore(t *testing.T) {
	inRange := completenessScore(TextMetrics{Words: 1000}, types.ContentArticle)
	assert.InDelta(t, 5.0, inRange, 0.001)

	short := completenessScore(TextMetrics{Words: 400}, types.ContentArticle)
	assert.InDelta(t, 2.5, short, 0.001) // 5 * 400/800

	overrun := completenessScore(TextMetrics{Words: 4000}, types.ContentArticle)
	assert.InDelta(t, 0.0, overrun, 0.001) // 100% past the max

	social := completenessScore(TextMetrics{Words: 100}, types.ContentSocialMedia)
	assert.InDelta(t, 5.0, social, 0.001)
}

func TestAcceptanceThresholds(t *testing.T) {
	tests := []struct {
		ct   types.ContentType
		want float64
	}{
		{types.ContentAcademic, 4.5},
		{types.ContentLegal, 4.5},
		{types.ContentMedical, 4.5},
		{types.ContentBusiness, 4.0},
		{types.ContentTechnical, 4.0},
		{types.ContentArticle, 3.5},
		{types.ContentCreative, 3.5},
		{types.ContentBlogPost, 3.0},
		{types.ContentEmail, 3.0},
		{types.ContentSocialMedia, 2.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AcceptanceThreshold(tt.ct), string(tt.ct))
	}
}

func TestRuleIssueDetectors(t *testing.T) {
	content := "This  text has doubled spaces. " +
		strings.Repeat("station ", 40) + "makes one very long sentence here."
	issues := ruleIssues(content)

	var descriptions []string
	for _, is := range issues {
		descriptions = append(descriptions, is.Description)
	}
	joined := strings.Join(descriptions, "; ")
	assert.Contains(t, joined, "doubled spaces")
	assert.Contains(t, joined, "longer than 35 words")
	assert.Contains(t, joined, "repeated") // "station" appears 40 times
}

func TestRuleIssuesRepeatedWordsOrdered(t *testing.T) {
	issues := ruleIssues(strings.Repeat("station harbor ", 12))

	var descriptions []string
	for _, is := range issues {
		if is.Dimension == DimStyle {
			descriptions = append(descriptions, is.Description)
		}
	}
	require.Len(t, descriptions, 2)
	assert.Contains(t, descriptions[0], `"harbor"`)
	assert.Contains(t, descriptions[1], `"station"`)
}

func TestGrammarScorePenalizesSlips(t *testing.T) {
	clean := "Every sentence here reads well. Nothing repeats or misfires."
	sloppy := "The the draft has has problems , and more more slips ."

	m1 := computeMetrics(clean)
	m2 := computeMetrics(sloppy)
	assert.Greater(t, grammarScore(clean, m1), grammarScore(sloppy, m2))
	assert.InDelta(t, 5.0, grammarScore(clean, m1), 0.001)
}

func TestAssessRulesOnly(t *testing.T) {
	a := NewAssessor(config.Default().Guardrails, nil)
	content := "A short clean note about the weekly schedule. Everyone reads it quickly."

	report := a.Assess(context.Background(), content, types.ContentEmail, "")
	require.Len(t, report.Dimensions, 4) // grammar, completeness, structure, readability

	var sum float64
	for _, d := range report.Dimensions {
		assert.Equal(t, 1.0, d.Confidence)
		assert.Equal(t, LevelFor(d.Score), d.Level)
		sum += d.Score
	}
	assert.InDelta(t, sum/4, report.OverallScore, 0.001)
	assert.Equal(t, LevelFor(report.OverallScore), report.OverallLevel)
	assert.Equal(t, report.OverallScore >= 3.0, report.MeetsThreshold())
}

func TestAssessFusesAIWithRules(t *testing.T) {
	gen := &mockBackend{content: `{
		"dimensions": [
			{"dimension": "clarity", "score": 4.0, "explanation": "clear", "confidence": 0.8},
			{"dimension": "grammar", "score": 4.0, "explanation": "fine", "confidence": 0.5},
			{"dimension": "sparkle", "score": 5.0, "explanation": "not a real dimension", "confidence": 1.0}
		],
		"issues": ["one", "two", "three", "four", "five"]
	}`}
	cfg := config.Default().Guardrails
	cfg.MaxAIIssues = 2
	a := NewAssessor(cfg, gen)

	content := "Clean simple words here."
	report := a.Assess(context.Background(), content, types.ContentSocialMedia, types.WorkerContentWriter)

	byDim := map[Dimension]Metric{}
	for _, d := range report.Dimensions {
		byDim[d.Dimension] = d
	}
	_, hasSparkle := byDim["sparkle"]
	assert.False(t, hasSparkle)

	clarity := byDim[DimClarity]
	assert.InDelta(t, 4.0, clarity.Score, 0.001) // AI-only passthrough
	assert.InDelta(t, 0.8, clarity.Confidence, 0.001)

	// Clean content scores 5 on the grammar rules; fused 0.7*4 + 0.3*5.
	grammar := byDim[DimGrammar]
	assert.InDelta(t, 4.3, grammar.Score, 0.001)
	assert.InDelta(t, 0.7*0.5+0.3, grammar.Confidence, 0.001)

	aiIssues := 0
	for _, is := range report.Issues {
		if is.Dimension == DimClarity {
			aiIssues++
		}
	}
	assert.Equal(t, 2, aiIssues) // capped by MaxAIIssues
}

func TestAssessBackendFailureFallsBackToRules(t *testing.T) {
	gen := &mockBackend{err: errors.New("backend down")}
	a := NewAssessor(config.Default().Guardrails, gen)

	report := a.Assess(context.Background(), "A plain note for the record.", types.ContentEmail, "")
	assert.Len(t, report.Dimensions, 4)
	for _, d := range report.Dimensions {
		assert.Equal(t, 1.0, d.Confidence)
	}
}

func TestSynthesizeStrengthsAndPriorities(t *testing.T) {
	r := &Report{
		ContentType: types.ContentBlogPost,
		Dimensions: []Metric{
			{Dimension: DimClarity, Score: 4.5},
			{Dimension: DimGrammar, Score: 4.0},
			{Dimension: DimStyle, Score: 2.0, Suggestions: []string{"vary word choice"}},
			{Dimension: DimStructure, Score: 1.0, Suggestions: []string{"add headings"}},
			{Dimension: DimTone, Score: 3.0},
		},
	}
	r.synthesize()

	assert.InDelta(t, 14.5/5, r.OverallScore, 0.001)
	assert.ElementsMatch(t, []Dimension{DimClarity, DimGrammar}, r.Strengths)
	assert.Equal(t, []Dimension{DimStructure, DimStyle, DimTone}, r.ImprovementPriority)
	assert.Contains(t, r.Recommendations, "add headings")
	assert.Contains(t, r.Recommendations, "vary word choice")
	// 2.9 misses the 3.0 blog threshold.
	assert.False(t, r.MeetsThreshold())
	assert.Contains(t, r.Recommendations[len(r.Recommendations)-1], "below the 3.0 threshold")
}

func TestSynthesizeEmptyDefaults(t *testing.T) {
	r := &Report{ContentType: types.ContentArticle}
	r.synthesize()
	assert.InDelta(t, 3.0, r.OverallScore, 0.001)
	assert.Equal(t, LevelAcceptable, r.OverallLevel)
}
