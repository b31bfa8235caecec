package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of failures surfaced at the platform
// boundary. Every task error carries exactly one kind.
type ErrorKind string

const (
	ErrKindInvalidRequest       ErrorKind = "invalid_request"
	ErrKindPermissionOverreach  ErrorKind = "permission_overreach"
	ErrKindCyclicDependency     ErrorKind = "cyclic_dependency"
	ErrKindWorkerUnavailable    ErrorKind = "worker_unavailable"
	ErrKindDeadlineExceeded     ErrorKind = "deadline_exceeded"
	ErrKindRateLimit            ErrorKind = "rate_limit"
	ErrKindNetwork              ErrorKind = "network"
	ErrKindBackendFailure       ErrorKind = "backend_failure"
	ErrKindDependencyFailed     ErrorKind = "dependency_failed"
	ErrKindCancellationGrace    ErrorKind = "cancellation_grace_exceeded"
	ErrKindGuardrailBlocked     ErrorKind = "guardrail_blocked"
	ErrKindDeadlock             ErrorKind = "deadlock_or_missing_dependency"
	ErrKindInvalidInput         ErrorKind = "invalid_input"
	ErrKindPermissionDenied     ErrorKind = "permission_denied"
	ErrKindSchemaViolation      ErrorKind = "schema_violation"
)

// FailureClass determines retry eligibility. Only transient failures retry.
type FailureClass string

const (
	FailureTransient FailureClass = "transient"
	FailurePermanent FailureClass = "permanent"
)

// Classify maps an error kind to its failure class.
func (k ErrorKind) Classify() FailureClass {
	switch k {
	case ErrKindDeadlineExceeded, ErrKindRateLimit, ErrKindNetwork, ErrKindBackendFailure:
		return FailureTransient
	default:
		return FailurePermanent
	}
}

// Sentinel errors for pre-dispatch rejection. Wrapped with context by callers.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrPermissionOverreach = errors.New("permission overreach")
	ErrCyclicDependency    = errors.New("cyclic dependency")
	ErrWorkerUnavailable   = errors.New("worker unavailable")
	ErrWorkflowNotFound    = errors.New("workflow not found")
)

// TaskError is the structured error attached to a failed task.
type TaskError struct {
	Kind           ErrorKind    `json:"kind"`
	Message        string       `json:"message"`
	Classification FailureClass `json:"classification"`
}

// NewTaskError builds a TaskError with the classification derived from kind.
func NewTaskError(kind ErrorKind, format string, args ...any) *TaskError {
	return &TaskError{
		Kind:           kind,
		Message:        fmt.Sprintf(format, args...),
		Classification: kind.Classify(),
	}
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Transient reports whether the error is eligible for retry.
func (e *TaskError) Transient() bool {
	return e != nil && e.Classification == FailureTransient
}

// AsTaskError converts an arbitrary error into a TaskError. Errors that are
// already TaskErrors pass through; everything else becomes a transient
// backend_failure.
func AsTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return &TaskError{
		Kind:           ErrKindBackendFailure,
		Message:        err.Error(),
		Classification: ErrKindBackendFailure.Classify(),
	}
}
