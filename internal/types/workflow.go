package types

import (
	"fmt"
	"time"
)

// =============================================================================
// TASK
// =============================================================================

// TaskStatus is the lifecycle state of a task or workflow.
// Transitions are pending -> running -> (completed | failed | cancelled);
// there are no back-transitions.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is one of the three terminal states.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCancelled || next == StatusFailed
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Task is a single unit of work assigned to one worker, with a bounded
// retry policy. Owned exclusively by its workflow; shared read-only with the
// guardrail pipeline after completion.
type Task struct {
	ID          string         `json:"id"`
	WorkerID    WorkerID       `json:"worker_id"`
	Description string         `json:"description"`
	Input       map[string]any `json:"input,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Priority    int            `json:"priority"` // 1-4, 4 highest
	Status      TaskStatus     `json:"status"`
	Result      *TaskResult    `json:"result,omitempty"`
	Error       *TaskError     `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ProcessingTime accumulates across retry attempts.
	ProcessingTime time.Duration `json:"processing_time_ns"`
	Attempts       int           `json:"attempts"`
}

// Clone returns a shallow-safe copy of the task for snapshot readers.
// Result and Error are immutable once set, so sharing them is fine.
func (t *Task) Clone() *Task {
	cp := *t
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	return &cp
}

// =============================================================================
// WORKFLOW
// =============================================================================

// Workflow is a DAG of tasks produced from a single request.
type Workflow struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Tasks       []*Task    `json:"tasks"`
	Status      TaskStatus `json:"status"`

	PermissionLevel PermissionLevel `json:"permission_level"`
	UserID          string          `json:"user_id,omitempty"`
	DocumentID      string          `json:"document_id,omitempty"`
	ProjectID       string          `json:"project_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalProcessingTime time.Duration `json:"total_processing_time_ns"`
}

// TaskByID returns the task with the given id, or nil.
func (w *Workflow) TaskByID(id string) *Task {
	for _, t := range w.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// DeriveStatus computes the workflow status from its task statuses:
// completed iff all tasks completed; failed if any task failed; cancelled if
// any task was cancelled without a failure.
func (w *Workflow) DeriveStatus() TaskStatus {
	allCompleted := true
	anyFailed := false
	anyCancelled := false
	for _, t := range w.Tasks {
		switch t.Status {
		case StatusFailed:
			anyFailed = true
			allCompleted = false
		case StatusCancelled:
			anyCancelled = true
			allCompleted = false
		case StatusCompleted:
		default:
			allCompleted = false
		}
	}
	switch {
	case allCompleted && len(w.Tasks) > 0:
		return StatusCompleted
	case anyFailed:
		return StatusFailed
	case anyCancelled:
		return StatusCancelled
	default:
		return w.Status
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// TaskSnapshot is the read-only view of a task exposed by status queries.
type TaskSnapshot struct {
	ID             string        `json:"id"`
	WorkerID       WorkerID      `json:"worker_id"`
	Status         TaskStatus    `json:"status"`
	Priority       int           `json:"priority"`
	DependsOn      []string      `json:"depends_on,omitempty"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	Error          *TaskError    `json:"error,omitempty"`
}

// WorkflowSnapshot is the point-in-time view of a workflow returned by
// Orchestrator.Status.
type WorkflowSnapshot struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Status  TaskStatus     `json:"status"`
	Tasks   []TaskSnapshot `json:"tasks"`
	Elapsed time.Duration  `json:"elapsed_ns"`
}

// String returns a one-line summary for logs.
func (s WorkflowSnapshot) String() string {
	done := 0
	for _, t := range s.Tasks {
		if t.Status == StatusCompleted {
			done++
		}
	}
	return fmt.Sprintf("workflow %s status=%s tasks=%d/%d elapsed=%v", s.ID, s.Status, done, len(s.Tasks), s.Elapsed)
}
