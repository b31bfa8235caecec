package deviation

import "regexp"

// AlertType is the tracked family of deviation.
type AlertType string

const (
	ScopeCreep          AlertType = "scope_creep"
	GoalMisalignment    AlertType = "goal_misalignment"
	ToneDeviation       AlertType = "tone_deviation"
	StyleInconsistency  AlertType = "style_inconsistency"
	ContentDrift        AlertType = "content_drift"
	StructuralDeviation AlertType = "structural_deviation"
	RequirementViolation AlertType = "requirement_violation"
	PermissionOverreach AlertType = "permission_overreach"
)

// Severity grades one alert.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// AlertLevel is the operator-facing urgency of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// severityTable fixes the severity per deviation family.
var severityTable = map[AlertType]Severity{
	ScopeCreep:           SeverityModerate,
	GoalMisalignment:     SeverityMajor,
	ToneDeviation:        SeverityModerate,
	StyleInconsistency:   SeverityMinor,
	ContentDrift:         SeverityModerate,
	StructuralDeviation:  SeverityMajor,
	RequirementViolation: SeverityCritical,
	PermissionOverreach:  SeverityCritical,
}

// severityWeight is the contribution of each severity to the risk score.
var severityWeight = map[Severity]float64{
	SeverityCritical: 1.0,
	SeverityMajor:    0.7,
	SeverityModerate: 0.4,
	SeverityMinor:    0.1,
}

// levelFor maps severity to the operator-facing alert level.
func levelFor(s Severity) AlertLevel {
	switch s {
	case SeverityCritical:
		return AlertCritical
	case SeverityMajor:
		return AlertError
	case SeverityModerate:
		return AlertWarning
	default:
		return AlertInfo
	}
}

// patternFamilies holds the regex sets scanned against content in the
// pattern pass. Only the three families with reliable textual signatures
// have pattern sets; the rest surface through the semantic scan.
var patternFamilies = map[AlertType][]*regexp.Regexp{
	ScopeCreep: {
		regexp.MustCompile(`(?i)\b(?:additionally|furthermore|as a bonus|while we'?re at it|also worth covering)\b`),
		regexp.MustCompile(`(?i)\b(?:beyond the (?:original )?scope|outside the (?:original )?(?:brief|request))\b`),
		regexp.MustCompile(`(?i)\b(?:expanding (?:on|into)|branching (?:out|into))\b`),
	},
	GoalMisalignment: {
		regexp.MustCompile(`(?i)\b(?:instead of|rather than|contrary to) the (?:goal|objective|purpose|brief)\b`),
		regexp.MustCompile(`(?i)\b(?:off[- ]topic|unrelated to|digress(?:ing|ion))\b`),
	},
	ToneDeviation: {
		regexp.MustCompile(`(?i)\b(?:lol|omg|gonna|wanna|ain'?t|y'?all)\b`),
		regexp.MustCompile(`!{2,}`),
		regexp.MustCompile(`(?i)\b(?:heretofore|aforementioned|notwithstanding|hereinafter)\b`),
	},
}
