// Package worker implements the uniform worker contract and the builtin
// writing workers. Every worker wraps the generation backend with a role
// prompt; the orchestrator only sees types.Worker.
//
// Workers are stateless across invocations except for in-memory performance
// counters (PerfStats). A worker never mutates its input and never touches
// another worker's state.
package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"wordloom/internal/backend"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// DefaultTimeout is the per-worker execution timeout unless overridden.
const DefaultTimeout = 30 * time.Second

// promptBuilder produces the system and user prompt for one task input.
type promptBuilder func(input types.TaskInput) (system, user string)

// BaseWorker is the shared implementation behind every builtin worker.
// Specialization happens through metadata, the prompt builder, and the
// generation temperature.
type BaseWorker struct {
	meta        types.WorkerMetadata
	caps        types.WorkerCapabilities
	gen         types.GenerationBackend
	buildPrompt promptBuilder
	temperature float64
	timeout     time.Duration
	stats       *PerfStats
}

// Compile-time assertion that BaseWorker implements the worker contract.
var _ types.Worker = (*BaseWorker)(nil)

// Metadata returns the worker's static description.
func (w *BaseWorker) Metadata() types.WorkerMetadata { return w.meta }

// Capabilities returns routing hints.
func (w *BaseWorker) Capabilities() types.WorkerCapabilities { return w.caps }

// Stats returns a snapshot of the worker's performance counters.
func (w *BaseWorker) Stats() StatsSnapshot { return w.stats.Snapshot() }

// Health reports worker health from the recent-task ring buffer.
func (w *BaseWorker) Health() types.HealthStatus {
	snap := w.stats.Snapshot()
	status := types.HealthStatus{
		Healthy:           true,
		RecentSuccessRate: snap.RecentSuccess,
	}
	if snap.RecentRecorded >= 10 && snap.RecentSuccess < 0.5 {
		status.Healthy = false
		status.Issues = append(status.Issues,
			fmt.Sprintf("recent success rate %.2f below 0.5", snap.RecentSuccess))
	}
	return status
}

// Execute runs one task. It enforces the per-worker timeout, validates input
// size, calls the backend once, and computes result confidence. Transient
// retry is the scheduler's concern; a failed attempt returns a classified
// TaskError.
func (w *BaseWorker) Execute(ctx context.Context, input types.TaskInput) (*types.TaskResult, error) {
	start := time.Now()

	if w.meta.MaxInputChars > 0 && len(input.Content) > w.meta.MaxInputChars {
		te := types.NewTaskError(types.ErrKindInvalidInput,
			"input exceeds %d chars for worker %s", w.meta.MaxInputChars, w.meta.ID)
		return w.fail(input, te, start), te
	}

	timeout := w.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	system, user := w.buildPrompt(input)
	resp, err := w.gen.Generate(ctx, types.GenerateRequest{
		Prompt:      user,
		System:      system,
		Temperature: w.temperature,
		Timeout:     timeout,
	})
	if err != nil {
		te := backend.WrapError(err)
		if ctx.Err() == context.DeadlineExceeded {
			te = types.NewTaskError(types.ErrKindDeadlineExceeded,
				"worker %s exceeded %v timeout", w.meta.ID, timeout)
		}
		logging.Worker("%s: task %s failed: %v", w.meta.ID, input.TaskID, te)
		return w.fail(input, te, start), te
	}

	elapsed := time.Since(start)
	result := &types.TaskResult{
		Status:         types.StatusCompleted,
		Content:        resp.Content,
		Confidence:     w.confidence(input, resp),
		ProcessingTime: elapsed,
		Metadata: map[string]any{
			"worker":        string(w.meta.ID),
			"finish_reason": resp.FinishReason,
		},
	}
	if resp.Usage != nil {
		result.Metadata["total_tokens"] = resp.Usage.TotalTokens
	}

	w.stats.Record(TaskSummary{
		TaskID:         input.TaskID,
		Success:        true,
		Confidence:     result.Confidence,
		ProcessingTime: elapsed,
		Timestamp:      time.Now(),
	})
	logging.WorkerDebug("%s: task %s completed in %v (confidence %.2f)",
		w.meta.ID, input.TaskID, elapsed, result.Confidence)
	return result, nil
}

func (w *BaseWorker) fail(input types.TaskInput, te *types.TaskError, start time.Time) *types.TaskResult {
	elapsed := time.Since(start)
	w.stats.Record(TaskSummary{
		TaskID:         input.TaskID,
		Success:        false,
		ProcessingTime: elapsed,
		Timestamp:      time.Now(),
		ErrorKind:      te.Kind,
	})
	return &types.TaskResult{
		Status:         types.StatusFailed,
		ProcessingTime: elapsed,
		Err:            te,
	}
}

// confidence is a monotone function of the result signals: a clean finish
// reason and non-trivial output raise it, truncation lowers it.
func (w *BaseWorker) confidence(input types.TaskInput, resp *types.GenerateResponse) float64 {
	c := 0.5
	switch strings.ToUpper(resp.FinishReason) {
	case "STOP", "FINISH_REASON_STOP", "END_TURN":
		c += 0.3
	case "MAX_TOKENS", "LENGTH":
		c -= 0.1
	}
	n := len(strings.Fields(resp.Content))
	switch {
	case n >= 200:
		c += 0.2
	case n >= 50:
		c += 0.1
	case n < 10:
		c -= 0.2
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// upstreamBlock renders completed dependency outputs for inclusion in a
// supporting worker's prompt. Sections are ordered by task id so identical
// inputs always produce the same prompt.
func upstreamBlock(input types.TaskInput) string {
	if len(input.Upstream) == 0 {
		return input.Content
	}
	ids := make([]string, 0, len(input.Upstream))
	for id := range input.Upstream {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "--- upstream %s ---\n%s\n", id, input.Upstream[id])
	}
	return b.String()
}
