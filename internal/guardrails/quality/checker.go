// Package quality scores reviewed content across ten dimensions by fusing a
// backend assessment with deterministic rule scorers. The rule path always
// runs; backend failures degrade to rules-only scoring.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"wordloom/internal/config"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Metric is the fused assessment of one dimension.
type Metric struct {
	Dimension   Dimension `json:"dimension"`
	Score       float64   `json:"score"` // 0-5
	Level       Level     `json:"level"`
	Explanation string    `json:"explanation,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Confidence  float64   `json:"confidence"`
}

// Report is the immutable output of one quality assessment.
type Report struct {
	ContentType         types.ContentType `json:"content_type"`
	WorkerID            types.WorkerID    `json:"worker_id,omitempty"`
	Metrics             TextMetrics       `json:"text_metrics"`
	Dimensions          []Metric          `json:"dimensions"`
	Issues              []Issue           `json:"issues,omitempty"`
	OverallScore        float64           `json:"overall_score"`
	OverallLevel        Level             `json:"overall_level"`
	Strengths           []Dimension       `json:"strengths,omitempty"`
	ImprovementPriority []Dimension       `json:"improvement_priority,omitempty"`
	Recommendations     []string          `json:"recommendations,omitempty"`
	CheckedAt           time.Time         `json:"checked_at"`
}

// MeetsThreshold reports whether the overall score clears the content type's
// acceptance gate.
func (r *Report) MeetsThreshold() bool {
	return r.OverallScore >= AcceptanceThreshold(r.ContentType)
}

// Assessor runs the quality pipeline. Safe for concurrent use.
type Assessor struct {
	cfg config.GuardrailsConfig
	gen types.GenerationBackend
	now func() time.Time
}

// NewAssessor creates an assessor. gen may be nil for rules-only scoring.
func NewAssessor(cfg config.GuardrailsConfig, gen types.GenerationBackend) *Assessor {
	return &Assessor{cfg: cfg, gen: gen, now: time.Now}
}

// aiDimension is the JSON shape requested from the backend per dimension.
type aiDimension struct {
	Dimension   string   `json:"dimension"`
	Score       float64  `json:"score"`
	Explanation string   `json:"explanation"`
	Suggestions []string `json:"suggestions,omitempty"`
	Confidence  float64  `json:"confidence"`
}

type aiAssessment struct {
	Dimensions []aiDimension `json:"dimensions"`
	Issues     []string      `json:"issues,omitempty"`
}

// Assess scores the content for its type. workerID is informational.
func (a *Assessor) Assess(ctx context.Context, content string, ct types.ContentType, workerID types.WorkerID) *Report {
	if !ct.Valid() {
		ct = types.ContentArticle
	}

	m := computeMetrics(content)
	rules := ruleScores(content, m, ct)
	ai, aiIssues := a.aiPass(ctx, content, ct)

	report := &Report{
		ContentType: ct,
		WorkerID:    workerID,
		Metrics:     m,
		CheckedAt:   a.now(),
	}

	for _, dim := range AllDimensions {
		aiMetric, hasAI := ai[dim]
		ruleScore, hasRule := rules[dim]

		var metric Metric
		switch {
		case hasAI && hasRule:
			metric = aiMetric
			metric.Score = 0.7*aiMetric.Score + 0.3*ruleScore
			metric.Confidence = 0.7*aiMetric.Confidence + 0.3*1.0
		case hasAI:
			metric = aiMetric
		case hasRule:
			metric = Metric{Dimension: dim, Score: ruleScore, Confidence: 1.0}
		default:
			continue
		}
		metric.Score = clamp(metric.Score, 0, 5)
		metric.Level = LevelFor(metric.Score)
		report.Dimensions = append(report.Dimensions, metric)
	}

	issues := ruleIssues(content)
	max := a.cfg.MaxAIIssues
	if max <= 0 {
		max = 10
	}
	for i, desc := range aiIssues {
		if i == max {
			break
		}
		issues = append(issues, Issue{Dimension: DimClarity, Description: desc, Severity: "moderate"})
	}
	report.Issues = dedupeIssues(issues)

	report.synthesize()
	logging.Guardrail("quality assessment type=%s score=%.2f level=%s issues=%d",
		ct, report.OverallScore, report.OverallLevel, len(report.Issues))
	return report
}

// aiPass makes the single backend call scoring all ten dimensions. Failure
// returns empty results and the rule path carries the report.
func (a *Assessor) aiPass(ctx context.Context, content string, ct types.ContentType) (map[Dimension]Metric, []string) {
	if a.gen == nil {
		return nil, nil
	}

	names := make([]string, len(AllDimensions))
	for i, d := range AllDimensions {
		names[i] = string(d)
	}
	prompt := fmt.Sprintf(
		`Assess the following %s across these dimensions: %s. Respond with a single JSON object {"dimensions": [{"dimension": string, "score": number in [0,5], "explanation": string, "suggestions": [string] (at most 3), "confidence": number in [0,1]}], "issues": [string]}. Return only the JSON.

Content:
%s`, ct, strings.Join(names, ", "), clip(content, 6000))

	resp, err := a.gen.Generate(ctx, types.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   2500,
		Temperature: 0.2,
		Timeout:     45 * time.Second,
	})
	if err != nil {
		logging.GuardrailDebug("quality AI pass failed, rules-only scoring: %v", err)
		return nil, nil
	}

	var parsed aiAssessment
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		logging.GuardrailDebug("quality AI pass returned unparseable JSON: %v", err)
		return nil, nil
	}

	out := make(map[Dimension]Metric, len(parsed.Dimensions))
	for _, d := range parsed.Dimensions {
		dim := Dimension(strings.ToLower(strings.TrimSpace(d.Dimension)))
		if !knownDimension(dim) {
			continue
		}
		sugg := d.Suggestions
		if len(sugg) > 3 {
			sugg = sugg[:3]
		}
		out[dim] = Metric{
			Dimension:   dim,
			Score:       clamp(d.Score, 0, 5),
			Explanation: d.Explanation,
			Suggestions: sugg,
			Confidence:  clamp(d.Confidence, 0, 1),
		}
	}
	return out, parsed.Issues
}

func knownDimension(d Dimension) bool {
	for _, known := range AllDimensions {
		if d == known {
			return true
		}
	}
	return false
}

// synthesize derives the overall score, level, strengths, improvement
// priorities, and recommendations from the fused dimensions.
func (r *Report) synthesize() {
	if len(r.Dimensions) == 0 {
		r.OverallScore = 3.0
		r.OverallLevel = LevelFor(r.OverallScore)
		return
	}

	var sum float64
	for _, d := range r.Dimensions {
		sum += d.Score
		if d.Score >= 4.0 {
			r.Strengths = append(r.Strengths, d.Dimension)
		}
	}
	r.OverallScore = sum / float64(len(r.Dimensions))
	r.OverallLevel = LevelFor(r.OverallScore)

	sorted := append([]Metric(nil), r.Dimensions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })
	for i := 0; i < len(sorted) && i < 3; i++ {
		r.ImprovementPriority = append(r.ImprovementPriority, sorted[i].Dimension)
		r.Recommendations = append(r.Recommendations, sorted[i].Suggestions...)
	}

	if threshold := AcceptanceThreshold(r.ContentType); r.OverallScore < threshold {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf(
			"overall score %.1f is below the %.1f threshold for %s content",
			r.OverallScore, threshold, r.ContentType))
	}
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
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
