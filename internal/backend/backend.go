// Package backend implements the generation backend: the single
// request/response surface for text generation shared by the router, the
// workers, and the guardrail checkers. The concrete implementation talks to
// Gemini; callers only see types.GenerationBackend.
//
// Failure classification lives here: network, rate_limit, and
// deadline_exceeded failures are transient and retried with exponential
// backoff; invalid_request and permission_denied are permanent.
package backend

import (
	"context"
	"errors"
	"net"
	"strings"

	"wordloom/internal/types"
)

// Classify maps a raw backend error to an error kind per the boundary
// taxonomy. Unknown errors classify as backend_failure (transient).
func Classify(err error) types.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrKindDeadlineExceeded
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return types.ErrKindDeadlineExceeded
		}
		return types.ErrKindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"),
		strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "quota"):
		return types.ErrKindRateLimit
	case strings.Contains(msg, "deadline"), strings.Contains(msg, "timeout"):
		return types.ErrKindDeadlineExceeded
	case strings.Contains(msg, "permission"), strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "401"):
		return types.ErrKindPermissionDenied
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "400"):
		return types.ErrKindInvalidInput
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"),
		strings.Contains(msg, "dns"):
		return types.ErrKindNetwork
	default:
		return types.ErrKindBackendFailure
	}
}

// WrapError converts a raw backend error into a classified TaskError.
func WrapError(err error) *types.TaskError {
	if err == nil {
		return nil
	}
	kind := Classify(err)
	return types.NewTaskError(kind, "backend: %s", err.Error())
}
