package types

import "time"

// WorkerID identifies a registered worker. Routing decisions carry typed
// worker ids, not free strings; the registry is keyed by this type.
type WorkerID string

const (
	WorkerContentWriter      WorkerID = "content_writer"
	WorkerStyleEditor        WorkerID = "style_editor"
	WorkerGrammarChecker     WorkerID = "grammar_checker"
	WorkerResearch           WorkerID = "research"
	WorkerStructureArchitect WorkerID = "structure_architect"
	WorkerCreativeEnhancer   WorkerID = "creative_enhancer"
	WorkerQAReviewer         WorkerID = "qa_reviewer"
	WorkerGeneralist         WorkerID = "generalist"
)

// Subtask is one entry of a routing decision's task breakdown.
type Subtask struct {
	ID                string        `json:"id"`
	Description       string        `json:"description"`
	WorkerID          WorkerID      `json:"worker_id"`
	Priority          int           `json:"priority"` // 1-4, 4 highest
	DependsOn         []string      `json:"depends_on,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration_ns"`
}

// RequestFeatures are the feature flags extracted during task analysis.
type RequestFeatures struct {
	RequiresResearch      bool `json:"requires_research"`
	RequiresCreativity    bool `json:"requires_creativity"`
	RequiresTechnical     bool `json:"requires_technical"`
	RequiresCurrentData   bool `json:"requires_current_data"`
	RequiresExpertSources bool `json:"requires_expert_sources"`
	Destructive           bool `json:"destructive"`
}

// RoutingDecision is the router's full answer for one request.
type RoutingDecision struct {
	PrimaryWorker       WorkerID        `json:"primary_worker"`
	SupportingWorkers   []WorkerID      `json:"supporting_workers,omitempty"` // at most 3
	TaskBreakdown       []Subtask       `json:"task_breakdown"`
	Complexity          Complexity      `json:"complexity"`
	Risk                Risk            `json:"risk"`
	RequiredPermissions PermissionLevel `json:"required_permissions"`
	EstimatedDuration   time.Duration   `json:"estimated_duration_ns"`
	Features            RequestFeatures `json:"features"`
	Reasoning           string          `json:"reasoning"`
}
