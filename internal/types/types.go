// Package types provides shared type definitions used across wordloom packages.
// This package exists to break import cycles between router, orchestrator, and
// the guardrail checkers. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// CLOSED ENUMS
// =============================================================================

// PermissionLevel controls how autonomously the platform may act on content.
// Ordered from most restrictive (assistant) to least (autonomous).
type PermissionLevel string

const (
	PermissionAssistant      PermissionLevel = "assistant"       // Human must approve writes
	PermissionCollaborative  PermissionLevel = "collaborative"   // Interactive
	PermissionSemiAutonomous PermissionLevel = "semi_autonomous" // Writes by default, human may veto
	PermissionAutonomous     PermissionLevel = "autonomous"      // Writes without prompt
)

// Rank returns the autonomy rank of a permission level. Higher means more
// autonomous. Unknown levels rank as assistant.
func (p PermissionLevel) Rank() int {
	switch p {
	case PermissionCollaborative:
		return 1
	case PermissionSemiAutonomous:
		return 2
	case PermissionAutonomous:
		return 3
	default:
		return 0
	}
}

// Valid reports whether p is one of the four recognized levels.
func (p PermissionLevel) Valid() bool {
	switch p {
	case PermissionAssistant, PermissionCollaborative, PermissionSemiAutonomous, PermissionAutonomous:
		return true
	}
	return false
}

// Min returns the more restrictive of two permission levels.
func (p PermissionLevel) Min(other PermissionLevel) PermissionLevel {
	if other.Rank() < p.Rank() {
		return other
	}
	return p
}

// Urgency describes how quickly the caller wants a result.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// VerificationLevel controls the hallucination checker's depth.
type VerificationLevel string

const (
	VerificationBasic         VerificationLevel = "basic"
	VerificationStandard      VerificationLevel = "standard"
	VerificationComprehensive VerificationLevel = "comprehensive"
	VerificationCritical      VerificationLevel = "critical"
)

// Valid reports whether v is a recognized verification level.
func (v VerificationLevel) Valid() bool {
	switch v {
	case VerificationBasic, VerificationStandard, VerificationComprehensive, VerificationCritical:
		return true
	}
	return false
}

// ContentType is the closed enum of supported document kinds.
type ContentType string

const (
	ContentArticle     ContentType = "article"
	ContentBlogPost    ContentType = "blog_post"
	ContentAcademic    ContentType = "academic_paper"
	ContentBusiness    ContentType = "business_document"
	ContentCreative    ContentType = "creative_writing"
	ContentTechnical   ContentType = "technical_documentation"
	ContentLegal       ContentType = "legal_document"
	ContentMedical     ContentType = "medical_document"
	ContentEmail       ContentType = "email"
	ContentSocialMedia ContentType = "social_media"
)

// Valid reports whether c is a recognized content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentArticle, ContentBlogPost, ContentAcademic, ContentBusiness, ContentCreative,
		ContentTechnical, ContentLegal, ContentMedical, ContentEmail, ContentSocialMedia:
		return true
	}
	return false
}

// CorrectionLevel controls how aggressively workers may rewrite content.
type CorrectionLevel string

const (
	CorrectionConservative CorrectionLevel = "conservative"
	CorrectionModerate     CorrectionLevel = "moderate"
	CorrectionAggressive   CorrectionLevel = "aggressive"
)

// Complexity classifies how involved a writing request is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Risk classifies the destructive potential of a request.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// AtLeast reports whether r is at least as severe as other.
func (r Risk) AtLeast(other Risk) bool {
	return riskRank(r) >= riskRank(other)
}

func riskRank(r Risk) int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 0
	}
}

// TaskKind tags the broad operation requested by the user.
type TaskKind string

const (
	TaskKindCreate    TaskKind = "create"
	TaskKindEdit      TaskKind = "edit"
	TaskKindReview    TaskKind = "review"
	TaskKindResearch  TaskKind = "research"
	TaskKindSummarize TaskKind = "summarize"
	TaskKindGeneric   TaskKind = "generic"
)

// =============================================================================
// REQUEST
// =============================================================================

// RequestOptions is the recognized configuration mapping carried by a Request.
// Zero values mean "unset"; the router and guardrails apply defaults.
type RequestOptions struct {
	PermissionLevel   PermissionLevel   `json:"permission_level,omitempty"`
	Urgency           Urgency           `json:"urgency,omitempty"`
	VerificationLevel VerificationLevel `json:"verification_level,omitempty"`
	ContentType       ContentType       `json:"content_type,omitempty"`
	Audience          string            `json:"audience,omitempty"`
	PreserveVoice     bool              `json:"preserve_voice,omitempty"`
	CorrectionLevel   CorrectionLevel   `json:"correction_level,omitempty"`
}

// Request is a single user writing request entering the platform.
type Request struct {
	Content    string         `json:"content"`
	Kind       TaskKind       `json:"task_kind"`
	Context    string         `json:"context,omitempty"`
	Options    RequestOptions `json:"options"`
	ProjectID  string         `json:"project_id,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
}

// GrantedPermission returns the permission level granted by the request,
// defaulting to collaborative when unset.
func (r Request) GrantedPermission() PermissionLevel {
	if r.Options.PermissionLevel.Valid() {
		return r.Options.PermissionLevel
	}
	return PermissionCollaborative
}

// Verification returns the effective verification level (default standard).
func (r Request) Verification() VerificationLevel {
	if r.Options.VerificationLevel.Valid() {
		return r.Options.VerificationLevel
	}
	return VerificationStandard
}

// DocType returns the effective content type (default article).
func (r Request) DocType() ContentType {
	if r.Options.ContentType.Valid() {
		return r.Options.ContentType
	}
	return ContentArticle
}

// Validate checks the request for structural problems before routing.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidRequest)
	}
	if r.Options.PermissionLevel != "" && !r.Options.PermissionLevel.Valid() {
		return fmt.Errorf("%w: unknown permission level %q", ErrInvalidRequest, r.Options.PermissionLevel)
	}
	if r.Options.VerificationLevel != "" && !r.Options.VerificationLevel.Valid() {
		return fmt.Errorf("%w: unknown verification level %q", ErrInvalidRequest, r.Options.VerificationLevel)
	}
	if r.Options.ContentType != "" && !r.Options.ContentType.Valid() {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidRequest, r.Options.ContentType)
	}
	return nil
}

// =============================================================================
// TIME HELPERS
// =============================================================================

// TimePtr returns a pointer to t. Used for optional timestamp fields.
func TimePtr(t time.Time) *time.Time { return &t }
