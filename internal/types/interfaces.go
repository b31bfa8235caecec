package types

import (
	"context"
	"time"
)

// =============================================================================
// GENERATION BACKEND
// =============================================================================

// GenerateRequest is the single request shape of the generation backend.
type GenerateRequest struct {
	Prompt      string
	System      string
	ModelHint   string
	MaxTokens   int
	Temperature float64
	Stop        []string
	Timeout     time.Duration
}

// Usage captures token accounting from the backend, when available.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GenerateResponse is the backend's answer: a text body and a finish reason.
type GenerateResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        *Usage `json:"usage,omitempty"`
}

// GenerationBackend is the single request/response surface for text
// generation shared by the router, workers, and guardrail checkers.
// Implementations must honor ctx cancellation; callers classify failures
// via AsTaskError / backend.Classify.
type GenerationBackend interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// =============================================================================
// WORKER CONTRACT
// =============================================================================

// WorkerMetadata is the static description every worker exposes.
type WorkerMetadata struct {
	ID            WorkerID   `json:"id"`
	Name          string     `json:"name"`
	Keywords      []string   `json:"keywords"`
	TaskKinds     []TaskKind `json:"supported_task_kinds,omitempty"`
	MaxInputChars int        `json:"max_input_chars"`
	Delegable     bool       `json:"delegable"`
}

// WorkerCapabilities is informational detail for the router.
type WorkerCapabilities struct {
	KindConfidence     map[TaskKind]float64 `json:"kind_confidence,omitempty"`
	Audiences          []string             `json:"audiences,omitempty"`
	Languages          []string             `json:"languages,omitempty"`
	CollaborationReady bool                 `json:"collaboration_ready"`
}

// HealthStatus is the result of a worker health probe.
type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	Issues            []string `json:"issues,omitempty"`
	RecentSuccessRate float64  `json:"recent_success_rate"`
}

// TaskInput is the payload handed to a worker for one execution.
// Workers must never mutate it.
type TaskInput struct {
	TaskID      string         `json:"task_id"`
	WorkflowID  string         `json:"workflow_id"`
	Kind        TaskKind       `json:"kind"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	Context     string         `json:"context,omitempty"`
	ContentType ContentType    `json:"content_type"`
	Audience    string         `json:"audience,omitempty"`
	Options     RequestOptions `json:"options"`
	// Upstream carries completed dependency results keyed by task id.
	Upstream map[string]string `json:"upstream,omitempty"`
	Payload  map[string]any    `json:"payload,omitempty"`
}

// TaskResult is the outcome of one worker execution. Confidence is required
// for every successful result and must be in [0,1].
type TaskResult struct {
	Status         TaskStatus     `json:"status"` // completed or failed
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime time.Duration  `json:"processing_time_ns"`
	Err            *TaskError     `json:"error,omitempty"`
}

// Worker is the uniform contract consumed by the orchestrator. Execute must
// return within the worker's declared timeout and honor ctx cancellation at
// every blocking call. Workers are stateless across invocations except for
// in-memory performance counters.
type Worker interface {
	Metadata() WorkerMetadata
	Capabilities() WorkerCapabilities
	Execute(ctx context.Context, input TaskInput) (*TaskResult, error)
	Health() HealthStatus
}

// WorkerRegistry resolves worker ids to workers. The router consults it for
// matching; the scheduler for dispatch.
type WorkerRegistry interface {
	Get(id WorkerID) (Worker, bool)
	List() []Worker
}
