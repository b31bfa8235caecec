// Package orchestrator executes routed workflows: it validates the task DAG,
// schedules ready tasks under a parallelism cap, retries transient failures
// with exponential backoff, cascades permanent failures to dependents, and
// supports graceful cancellation.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"wordloom/internal/backend"
	"wordloom/internal/config"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// execution is the orchestrator's per-workflow state. mu guards the workflow
// and every task in it; cancelCh is closed at most once by Cancel.
type execution struct {
	mu  sync.RWMutex
	wf  *types.Workflow
	req types.Request

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{} // closed when ExecuteWorkflow finishes
	started    bool
}

func (e *execution) cancelRequested() bool {
	select {
	case <-e.cancelCh:
		return true
	default:
		return false
	}
}

// WorkflowResult is the blocking answer from ExecuteWorkflow.
type WorkflowResult struct {
	WorkflowID   string           `json:"workflow_id"`
	Status       types.TaskStatus `json:"status"`
	FinalContent string           `json:"final_content,omitempty"`
	FinalTaskID  string           `json:"final_task_id,omitempty"`
	Confidence   float64          `json:"confidence,omitempty"`
	Elapsed      time.Duration    `json:"elapsed_ns"`
	Error        *types.TaskError `json:"error,omitempty"`
}

// Orchestrator owns workflow lifecycles. One instance serves the whole
// process; workflows execute concurrently and independently.
type Orchestrator struct {
	registry types.WorkerRegistry
	metrics  *Collector

	mu        sync.RWMutex
	cfg       config.OrchestratorConfig // replaceable via ApplyConfig
	policy    backend.RetryPolicy
	workflows map[string]*execution
}

// New creates an orchestrator. metrics may be nil; a collector without
// Prometheus registration is substituted.
func New(cfg config.OrchestratorConfig, registry types.WorkerRegistry, metrics *Collector) *Orchestrator {
	if metrics == nil {
		metrics = NewCollector(nil)
	}
	return &Orchestrator{
		cfg:       cfg,
		registry:  registry,
		metrics:   metrics,
		policy:    retryPolicy(cfg),
		workflows: make(map[string]*execution),
	}
}

func retryPolicy(cfg config.OrchestratorConfig) backend.RetryPolicy {
	return backend.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Base:       cfg.RetryBackoffBase,
		Factor:     2,
		Jitter:     0.25,
		Max:        cfg.RetryBackoffMax,
	}
}

// ApplyConfig replaces the execution tunables, typically from a config
// reload. Workflows already running keep the settings they started with.
func (o *Orchestrator) ApplyConfig(cfg config.OrchestratorConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	o.policy = retryPolicy(cfg)
	logging.Scheduler("applied orchestrator tunables parallelism=%d retries=%d", cfg.Parallelism, cfg.MaxRetries)
}

// CreateWorkflow materializes a routing decision into a validated workflow.
// The total-workflow counter moves only after validation passes.
func (o *Orchestrator) CreateWorkflow(decision *types.RoutingDecision, req types.Request) (*types.Workflow, error) {
	if decision == nil || len(decision.TaskBreakdown) == 0 {
		return nil, fmt.Errorf("%w: empty task breakdown", types.ErrInvalidRequest)
	}

	now := time.Now()
	wf := &types.Workflow{
		ID:              uuid.NewString(),
		Name:            fmt.Sprintf("%s via %s", req.Kind, decision.PrimaryWorker),
		Description:     truncate(req.Content, 200),
		Status:          types.StatusPending,
		PermissionLevel: req.GrantedPermission(),
		UserID:          req.UserID,
		DocumentID:      req.DocumentID,
		ProjectID:       req.ProjectID,
		CreatedAt:       now,
	}
	for _, sub := range decision.TaskBreakdown {
		wf.Tasks = append(wf.Tasks, &types.Task{
			ID:          sub.ID,
			WorkerID:    sub.WorkerID,
			Description: sub.Description,
			DependsOn:   append([]string(nil), sub.DependsOn...),
			Priority:    sub.Priority,
			Status:      types.StatusPending,
			CreatedAt:   now,
		})
	}

	if err := validateWorkflow(wf, decision.RequiredPermissions, req.GrantedPermission()); err != nil {
		return nil, err
	}

	o.metrics.RecordCreated()

	exec := &execution{
		wf:       wf,
		req:      req,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	o.mu.Lock()
	o.workflows[wf.ID] = exec
	o.mu.Unlock()

	logging.Scheduler("created workflow %s tasks=%d permission=%s", wf.ID, len(wf.Tasks), wf.PermissionLevel)
	return wf, nil
}

// ExecuteWorkflow runs the workflow to a terminal state and blocks until it
// gets there. A workflow executes at most once.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string) (*WorkflowResult, error) {
	exec, err := o.lookup(workflowID)
	if err != nil {
		return nil, err
	}

	exec.mu.Lock()
	if exec.started {
		exec.mu.Unlock()
		return nil, fmt.Errorf("%w: workflow %s already executed", types.ErrInvalidRequest, workflowID)
	}
	exec.started = true
	start := time.Now()
	exec.wf.Status = types.StatusRunning
	exec.wf.StartedAt = &start
	exec.mu.Unlock()

	o.mu.RLock()
	cfg, policy := o.cfg, o.policy
	o.mu.RUnlock()

	if cfg.WorkflowDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.WorkflowDeadline)
		defer cancel()
	}

	s := &scheduler{
		cfg:      cfg,
		registry: o.registry,
		metrics:  o.metrics,
		policy:   policy,
		exec:     exec,
		req:      exec.req,
	}
	s.run(ctx)

	exec.mu.Lock()
	end := time.Now()
	exec.wf.CompletedAt = &end
	exec.wf.Status = exec.wf.DeriveStatus()
	for _, t := range exec.wf.Tasks {
		exec.wf.TotalProcessingTime += t.ProcessingTime
	}
	result := buildResultLocked(exec.wf, end.Sub(start))
	exec.mu.Unlock()
	close(exec.done)

	o.metrics.RecordWorkflow(result.Status, result.Elapsed)
	logging.Scheduler("workflow %s finished status=%s elapsed=%v", workflowID, result.Status, result.Elapsed)
	return result, nil
}

// Status returns a point-in-time snapshot of the workflow.
func (o *Orchestrator) Status(workflowID string) (types.WorkflowSnapshot, error) {
	exec, err := o.lookup(workflowID)
	if err != nil {
		return types.WorkflowSnapshot{}, err
	}

	exec.mu.RLock()
	defer exec.mu.RUnlock()

	snap := types.WorkflowSnapshot{
		ID:     exec.wf.ID,
		Name:   exec.wf.Name,
		Status: exec.wf.Status,
	}
	if exec.wf.StartedAt != nil {
		if exec.wf.CompletedAt != nil {
			snap.Elapsed = exec.wf.CompletedAt.Sub(*exec.wf.StartedAt)
		} else {
			snap.Elapsed = time.Since(*exec.wf.StartedAt)
		}
	}
	for _, t := range exec.wf.Tasks {
		snap.Tasks = append(snap.Tasks, types.TaskSnapshot{
			ID:             t.ID,
			WorkerID:       t.WorkerID,
			Status:         t.Status,
			Priority:       t.Priority,
			DependsOn:      append([]string(nil), t.DependsOn...),
			ProcessingTime: t.ProcessingTime,
			Error:          t.Error,
		})
	}
	return snap, nil
}

// Result returns the terminal result for a finished workflow.
func (o *Orchestrator) Result(workflowID string) (*WorkflowResult, error) {
	exec, err := o.lookup(workflowID)
	if err != nil {
		return nil, err
	}
	exec.mu.RLock()
	defer exec.mu.RUnlock()
	if !exec.wf.Status.Terminal() {
		return nil, fmt.Errorf("%w: workflow %s not finished", types.ErrInvalidRequest, workflowID)
	}
	var elapsed time.Duration
	if exec.wf.StartedAt != nil && exec.wf.CompletedAt != nil {
		elapsed = exec.wf.CompletedAt.Sub(*exec.wf.StartedAt)
	}
	return buildResultLocked(exec.wf, elapsed), nil
}

// Cancel requests cancellation. Idempotent; the bool reports whether this
// call transitioned the workflow out of a non-terminal state.
func (o *Orchestrator) Cancel(workflowID string) (bool, error) {
	exec, err := o.lookup(workflowID)
	if err != nil {
		return false, err
	}

	exec.mu.RLock()
	terminal := exec.wf.Status.Terminal()
	started := exec.started
	exec.mu.RUnlock()
	if terminal {
		return false, nil
	}

	first := false
	exec.cancelOnce.Do(func() {
		first = true
		close(exec.cancelCh)
		logging.Scheduler("cancellation requested for workflow %s", workflowID)
	})

	// A workflow cancelled before execution never runs; settle it here.
	if !started {
		exec.mu.Lock()
		if !exec.started && !exec.wf.Status.Terminal() {
			now := time.Now()
			for _, t := range exec.wf.Tasks {
				if t.Status == types.StatusPending {
					t.Status = types.StatusCancelled
					t.CompletedAt = &now
				}
			}
			exec.wf.Status = types.StatusCancelled
			exec.wf.CompletedAt = &now
		}
		exec.mu.Unlock()
	}
	return first, nil
}

// Metrics returns a snapshot of global execution metrics.
func (o *Orchestrator) Metrics() GlobalMetrics { return o.metrics.Snapshot() }

// Workflow returns a snapshot copy of the workflow's tasks for downstream
// consumers like the guardrail pipeline.
func (o *Orchestrator) Workflow(workflowID string) (*types.Workflow, error) {
	exec, err := o.lookup(workflowID)
	if err != nil {
		return nil, err
	}
	exec.mu.RLock()
	defer exec.mu.RUnlock()
	cp := *exec.wf
	cp.Tasks = make([]*types.Task, len(exec.wf.Tasks))
	for i, t := range exec.wf.Tasks {
		cp.Tasks[i] = t.Clone()
	}
	return &cp, nil
}

// PruneExpired drops terminal workflows older than the retention window and
// returns the ids removed. Running workflows are never pruned.
func (o *Orchestrator) PruneExpired() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg.Retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-o.cfg.Retention)
	var removed []string
	for id, exec := range o.workflows {
		exec.mu.RLock()
		expired := exec.wf.Status.Terminal() &&
			exec.wf.CompletedAt != nil && exec.wf.CompletedAt.Before(cutoff)
		exec.mu.RUnlock()
		if expired {
			delete(o.workflows, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		logging.Scheduler("pruned %d expired workflows", len(removed))
	}
	return removed
}

func (o *Orchestrator) lookup(id string) (*execution, error) {
	o.mu.RLock()
	exec, ok := o.workflows[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrWorkflowNotFound, id)
	}
	return exec, nil
}

// buildResultLocked derives the workflow result, following the transform
// chain from the primary task to the last completed task that feeds nothing
// further. Caller holds exec.mu.
func buildResultLocked(wf *types.Workflow, elapsed time.Duration) *WorkflowResult {
	res := &WorkflowResult{
		WorkflowID: wf.ID,
		Status:     wf.Status,
		Elapsed:    elapsed,
	}

	if final := finalTask(wf); final != nil && final.Result != nil {
		res.FinalContent = final.Result.Content
		res.FinalTaskID = final.ID
		res.Confidence = final.Result.Confidence
	}
	for _, t := range wf.Tasks {
		if t.Status == types.StatusFailed && t.Error != nil && t.Error.Kind != types.ErrKindDependencyFailed {
			res.Error = t.Error
			break
		}
	}
	if res.Error == nil && wf.Status != types.StatusCompleted {
		for _, t := range wf.Tasks {
			if t.Error != nil {
				res.Error = t.Error
				break
			}
		}
	}
	return res
}

// finalTask walks from the primary task to the completed task nothing else
// consumes. With a QA reviewer in the graph that is the QA task, otherwise
// the last transform pass.
func finalTask(wf *types.Workflow) *types.Task {
	if len(wf.Tasks) == 0 {
		return nil
	}
	cur := wf.Tasks[0]
	if cur.Status != types.StatusCompleted {
		return nil
	}
	for {
		var next *types.Task
		for _, t := range wf.Tasks {
			if t == cur || t.Status != types.StatusCompleted {
				continue
			}
			for _, dep := range t.DependsOn {
				if dep == cur.ID {
					next = t
					break
				}
			}
			if next != nil {
				break
			}
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
