// Package deviation monitors delivered content against registered project
// objectives: pattern-based deviation alerts, a semantic scan, per-objective
// compliance checks, and an aggregated risk assessment.
package deviation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wordloom/internal/config"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Alert is one detected deviation. Resolution state is owned by the caller;
// the monitor only creates alerts.
type Alert struct {
	ID                  string     `json:"id"`
	Type                AlertType  `json:"type"`
	Severity            Severity   `json:"severity"`
	Level               AlertLevel `json:"alert_level"`
	AffectedObjectiveID string     `json:"affected_objective_id,omitempty"`
	Evidence            []string   `json:"evidence,omitempty"`
	SuggestedCorrection string     `json:"suggested_correction,omitempty"`
	Confidence          float64    `json:"confidence"`
	Resolved            bool       `json:"resolved"`
}

// ComplianceResult is the per-objective verdict.
type ComplianceResult struct {
	ObjectiveID     string   `json:"objective_id"`
	Compliant       bool     `json:"compliant"`
	ComplianceScore float64  `json:"compliance_score"`
	Violations      []string `json:"violations,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Evidence        []string `json:"evidence,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
}

// RiskLevel is the aggregate deviation risk band.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Report is the immutable output of one deviation check.
type Report struct {
	ProjectID              string             `json:"project_id,omitempty"`
	Alerts                 []Alert            `json:"alerts,omitempty"`
	Compliance             []ComplianceResult `json:"compliance,omitempty"`
	OverallComplianceScore float64            `json:"overall_compliance_score"`
	OverallRiskLevel       RiskLevel          `json:"overall_risk_level"`
	RiskScore              float64            `json:"risk_score"`
	CorrectiveActions      []string           `json:"corrective_actions,omitempty"`
	CheckedAt              time.Time          `json:"checked_at"`
}

// Acceptable reports whether the risk level passes the acceptance gate.
func (r *Report) Acceptable() bool {
	return r.OverallRiskLevel == RiskLow || r.OverallRiskLevel == RiskMedium
}

// Monitor runs the deviation pipeline against registered objectives.
type Monitor struct {
	cfg      config.GuardrailsConfig
	gen      types.GenerationBackend
	registry *Registry
	now      func() time.Time
}

// NewMonitor creates a monitor sharing the given objectives registry.
func NewMonitor(cfg config.GuardrailsConfig, gen types.GenerationBackend, registry *Registry) *Monitor {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Monitor{cfg: cfg, gen: gen, registry: registry, now: time.Now}
}

// Registry exposes the objectives registry for registration calls.
func (m *Monitor) Registry() *Registry { return m.registry }

// Check runs the full pipeline for content produced under projectID. With no
// registered objectives only the pattern scan contributes.
func (m *Monitor) Check(ctx context.Context, content, projectID string) *Report {
	report := &Report{
		ProjectID:              projectID,
		OverallComplianceScore: 1.0,
		CheckedAt:              m.now(),
	}

	report.Alerts = patternScan(content)

	set, hasObjectives := m.registry.Get(projectID)
	if hasObjectives && m.gen != nil {
		report.Alerts = append(report.Alerts, m.semanticScan(ctx, content, set)...)

		var scoreSum float64
		for _, obj := range set.Objectives {
			res := m.checkCompliance(ctx, content, obj)
			report.Compliance = append(report.Compliance, res)
			scoreSum += res.ComplianceScore
		}
		if len(report.Compliance) > 0 {
			report.OverallComplianceScore = scoreSum / float64(len(report.Compliance))
		}
	}

	report.assessRisk()
	report.deriveActions()
	logging.Guardrail("deviation check project=%s alerts=%d risk=%s compliance=%.2f",
		projectID, len(report.Alerts), report.OverallRiskLevel, report.OverallComplianceScore)
	return report
}

// patternScan applies the per-family regex sets. Each match contributes
// evidence; one alert is raised per family with matches.
func patternScan(content string) []Alert {
	var alerts []Alert
	n := 0
	for _, typ := range []AlertType{ScopeCreep, GoalMisalignment, ToneDeviation} {
		var evidence []string
		for _, re := range patternFamilies[typ] {
			for _, match := range re.FindAllString(content, 5) {
				evidence = append(evidence, strings.TrimSpace(match))
			}
		}
		if len(evidence) == 0 {
			continue
		}
		n++
		sev := severityTable[typ]
		alerts = append(alerts, Alert{
			ID:         fmt.Sprintf("pat%d", n),
			Type:       typ,
			Severity:   sev,
			Level:      levelFor(sev),
			Evidence:   evidence,
			Confidence: 0.6,
		})
	}
	return alerts
}

// semanticItem is the JSON shape requested from the backend scan.
type semanticItem struct {
	Type        string   `json:"type"`
	ObjectiveID string   `json:"objective_id,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
	Correction  string   `json:"correction,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// semanticScan makes one backend call with the objective set and a content
// excerpt. Failures contribute nothing.
func (m *Monitor) semanticScan(ctx context.Context, content string, set ObjectiveSet) []Alert {
	max := m.cfg.MaxSemanticAlerts
	if max <= 0 {
		max = 8
	}

	var objectives strings.Builder
	for _, obj := range set.Objectives {
		fmt.Fprintf(&objectives, "- [%s] %s (%s, priority %s)\n", obj.ID, obj.Description, obj.Category, obj.Priority)
	}

	prompt := fmt.Sprintf(
		`Given these project objectives:
%s
Identify deviations in the content below. Respond with a JSON array of at most %d objects {"type": "scope_creep"|"goal_misalignment"|"tone_deviation"|"style_inconsistency"|"content_drift"|"structural_deviation"|"requirement_violation", "objective_id": string (optional), "evidence": [string], "correction": string (optional), "confidence": number in [0,1]}. Return only the JSON array.

Content:
%s`, objectives.String(), max, clip(content, 2000))

	resp, err := m.gen.Generate(ctx, types.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   1200,
		Temperature: 0.2,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		logging.GuardrailDebug("semantic deviation scan failed: %v", err)
		return nil
	}

	var items []semanticItem
	if err := json.Unmarshal([]byte(extractJSONArray(resp.Content)), &items); err != nil {
		logging.GuardrailDebug("semantic deviation scan returned unparseable JSON: %v", err)
		return nil
	}
	if len(items) > max {
		items = items[:max]
	}

	var alerts []Alert
	for i, item := range items {
		typ := AlertType(strings.ToLower(strings.TrimSpace(item.Type)))
		sev, known := severityTable[typ]
		if !known {
			continue
		}
		conf := item.Confidence
		if conf < 0 || conf > 1 {
			conf = 0.5
		}
		alerts = append(alerts, Alert{
			ID:                  fmt.Sprintf("sem%d", i+1),
			Type:                typ,
			Severity:            sev,
			Level:               levelFor(sev),
			AffectedObjectiveID: item.ObjectiveID,
			Evidence:            item.Evidence,
			SuggestedCorrection: item.Correction,
			Confidence:          conf,
		})
	}
	return alerts
}

// checkCompliance makes one backend call per objective. The failure default
// is deliberately permissive: compliant with score 0.5.
func (m *Monitor) checkCompliance(ctx context.Context, content string, obj Objective) ComplianceResult {
	prompt := fmt.Sprintf(
		`Does the content below satisfy this objective?
Objective: %s
Criteria: %s
Constraints: %s
Respond with a single JSON object {"compliant": bool, "compliance_score": number in [0,1], "violations": [string], "recommendations": [string], "evidence": [string]}.

Content:
%s`, obj.Description, strings.Join(obj.MeasurableCriteria, "; "), strings.Join(obj.Constraints, "; "), clip(content, 2000))

	fallback := ComplianceResult{
		ObjectiveID:     obj.ID,
		Compliant:       true,
		ComplianceScore: 0.5,
	}

	resp, err := m.gen.Generate(ctx, types.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   600,
		Temperature: 0.1,
		Timeout:     20 * time.Second,
	})
	if err != nil {
		fallback.Explanation = fmt.Sprintf("compliance verification failed: %v", err)
		return fallback
	}

	var parsed struct {
		Compliant       bool     `json:"compliant"`
		ComplianceScore float64  `json:"compliance_score"`
		Violations      []string `json:"violations,omitempty"`
		Recommendations []string `json:"recommendations,omitempty"`
		Evidence        []string `json:"evidence,omitempty"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err != nil {
		fallback.Explanation = fmt.Sprintf("compliance response unparseable: %v", err)
		return fallback
	}

	score := parsed.ComplianceScore
	if score < 0 || score > 1 {
		score = 0.5
	}
	return ComplianceResult{
		ObjectiveID:     obj.ID,
		Compliant:       parsed.Compliant,
		ComplianceScore: score,
		Violations:      parsed.Violations,
		Recommendations: parsed.Recommendations,
		Evidence:        parsed.Evidence,
	}
}

// assessRisk derives the risk level and normalized risk score from alerts.
func (r *Report) assessRisk() {
	if len(r.Alerts) == 0 {
		r.OverallRiskLevel = RiskLow
		r.RiskScore = 0
		return
	}

	var criticalN, majorN, moderateN int
	var weightSum float64
	for _, a := range r.Alerts {
		weightSum += severityWeight[a.Severity]
		switch a.Severity {
		case SeverityCritical:
			criticalN++
		case SeverityMajor:
			majorN++
		case SeverityModerate:
			moderateN++
		}
	}
	r.RiskScore = weightSum / float64(len(r.Alerts))

	switch {
	case criticalN > 0:
		r.OverallRiskLevel = RiskCritical
	case majorN > 0:
		r.OverallRiskLevel = RiskHigh
	case moderateN >= 3:
		r.OverallRiskLevel = RiskMedium
	default:
		r.OverallRiskLevel = RiskLow
	}
}

// deriveActions collects corrective actions: critical alerts first, then
// non-compliant objectives' recommendations, then risk mitigation.
func (r *Report) deriveActions() {
	seen := make(map[string]bool)
	add := func(action string) {
		action = strings.TrimSpace(action)
		if action == "" || seen[action] {
			return
		}
		seen[action] = true
		r.CorrectiveActions = append(r.CorrectiveActions, action)
	}

	for _, a := range r.Alerts {
		if a.Severity == SeverityCritical {
			if a.SuggestedCorrection != "" {
				add(a.SuggestedCorrection)
			} else {
				add(fmt.Sprintf("resolve critical %s alert %s", a.Type, a.ID))
			}
		}
	}
	for _, c := range r.Compliance {
		if !c.Compliant {
			for _, rec := range c.Recommendations {
				add(rec)
			}
		}
	}
	if r.OverallRiskLevel == RiskHigh || r.OverallRiskLevel == RiskCritical {
		add("review flagged deviations against the project objectives before delivery")
	}
}

func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func extractJSONObject(s string) string {
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
