package orchestrator

import (
	"context"
	"sort"
	"time"

	"wordloom/internal/backend"
	"wordloom/internal/config"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// taskOutcome is the completion message sent by a task goroutine back to the
// scheduler loop.
type taskOutcome struct {
	taskID  string
	result  *types.TaskResult
	taskErr *types.TaskError
}

// scheduler drives one workflow to a terminal state. All task mutation
// happens through exec.mu; the loop itself is the only dispatcher.
type scheduler struct {
	cfg      config.OrchestratorConfig
	registry types.WorkerRegistry
	metrics  *Collector
	policy   backend.RetryPolicy
	exec     *execution
	req      types.Request

	cancelling bool // set under exec.mu once cancellation begins
}

// run executes the workflow until every task is terminal. The completion
// channel is buffered to the task count so task goroutines can always post
// their outcome and exit, even after the loop stops listening.
func (s *scheduler) run(ctx context.Context) {
	wf := s.exec.wf
	done := make(chan taskOutcome, len(wf.Tasks))

	runCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	inFlight := 0
	for {
		if !s.exec.cancelRequested() && ctx.Err() == nil {
			for _, t := range s.readyTasks() {
				if inFlight >= s.cfg.Parallelism {
					break
				}
				s.dispatch(runCtx, t, done)
				inFlight++
			}
		}

		if s.allTerminal() {
			return
		}

		if inFlight == 0 {
			if s.exec.cancelRequested() || ctx.Err() != nil {
				s.cancelPending()
				return
			}
			// Pending tasks remain but none can ever become ready.
			s.failStuck()
			return
		}

		select {
		case out := <-done:
			inFlight--
			s.settle(out)
		case <-s.exec.cancelCh:
			s.cancelPending()
			cancelTasks()
			inFlight = s.drainWithGrace(done, inFlight)
		case <-ctx.Done():
			s.cancelPending()
			cancelTasks()
			inFlight = s.drainWithGrace(done, inFlight)
		}
	}
}

// drainWithGrace gives signalled tasks the configured grace period to
// return. Tasks still running when it expires are abandoned.
func (s *scheduler) drainWithGrace(done chan taskOutcome, inFlight int) int {
	if inFlight == 0 {
		return 0
	}
	deadline := time.NewTimer(s.cfg.CancellationGrace)
	defer deadline.Stop()

	for inFlight > 0 {
		select {
		case out := <-done:
			inFlight--
			s.settle(out)
		case <-deadline.C:
			s.abandonRunning()
			// Outcomes from the cancelled goroutines land in the buffered
			// channel and are dropped; the tasks are already terminal.
			return 0
		}
	}
	return 0
}

// readyTasks returns pending tasks whose dependencies have all completed,
// ordered by priority descending then creation time then id.
func (s *scheduler) readyTasks() []*types.Task {
	s.exec.mu.RLock()
	defer s.exec.mu.RUnlock()

	var ready []*types.Task
	for _, t := range s.exec.wf.Tasks {
		if t.Status != types.StatusPending {
			continue
		}
		ok := true
		for _, dep := range t.DependsOn {
			d := s.exec.wf.TaskByID(dep)
			if d == nil || d.Status != types.StatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		if !ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
			return ready[i].CreatedAt.Before(ready[j].CreatedAt)
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

// dispatch marks the task running and launches its goroutine.
func (s *scheduler) dispatch(ctx context.Context, t *types.Task, done chan<- taskOutcome) {
	s.exec.mu.Lock()
	t.Status = types.StatusRunning
	now := time.Now()
	t.StartedAt = &now
	input := s.buildInputLocked(t)
	s.exec.mu.Unlock()

	logging.Scheduler("dispatching task %s worker=%s workflow=%s", t.ID, t.WorkerID, s.exec.wf.ID)

	go func() {
		result, taskErr := s.runTask(ctx, t, input)
		done <- taskOutcome{taskID: t.ID, result: result, taskErr: taskErr}
	}()
}

// buildInputLocked assembles the worker input, including completed upstream
// results keyed by task id. Caller holds exec.mu.
func (s *scheduler) buildInputLocked(t *types.Task) types.TaskInput {
	upstream := make(map[string]string, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		if d := s.exec.wf.TaskByID(dep); d != nil && d.Result != nil {
			upstream[dep] = d.Result.Content
		}
	}
	return types.TaskInput{
		TaskID:      t.ID,
		WorkflowID:  s.exec.wf.ID,
		Kind:        s.req.Kind,
		Description: t.Description,
		Content:     s.req.Content,
		Context:     s.req.Context,
		ContentType: s.req.DocType(),
		Audience:    s.req.Options.Audience,
		Options:     s.req.Options,
		Upstream:    upstream,
		Payload:     t.Input,
	}
}

// runTask executes one task with transient-failure retries. Each attempt
// gets a fresh start timestamp; processing time accumulates across attempts.
func (s *scheduler) runTask(ctx context.Context, t *types.Task, input types.TaskInput) (*types.TaskResult, *types.TaskError) {
	w, ok := s.registry.Get(t.WorkerID)
	if !ok {
		return nil, types.NewTaskError(types.ErrKindWorkerUnavailable, "worker %s not registered", t.WorkerID)
	}

	var lastErr *types.TaskError
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.policy.Delay(attempt)
			logging.SchedulerDebug("task %s retry %d/%d after %v: %v",
				t.ID, attempt, s.cfg.MaxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, types.NewTaskError(types.ErrKindDeadlineExceeded, "cancelled before retry: %v", ctx.Err())
			case <-time.After(delay):
			}
		}

		start := time.Now()
		s.exec.mu.Lock()
		t.StartedAt = &start
		t.Attempts++
		s.exec.mu.Unlock()

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
		result, err := w.Execute(attemptCtx, input)
		cancel()

		elapsed := time.Since(start)
		s.exec.mu.Lock()
		t.ProcessingTime += elapsed
		s.exec.mu.Unlock()

		if err == nil && result != nil && result.Status == types.StatusCompleted {
			return result, nil
		}

		switch {
		case err != nil:
			lastErr = types.AsTaskError(err)
		case result != nil && result.Err != nil:
			lastErr = result.Err
		default:
			lastErr = types.NewTaskError(types.ErrKindBackendFailure, "worker %s returned no result", t.WorkerID)
		}
		if !lastErr.Transient() || ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// settle applies one task outcome: terminal status, metrics, and the
// dependency-failure cascade on permanent failure.
func (s *scheduler) settle(out taskOutcome) {
	s.exec.mu.Lock()
	defer s.exec.mu.Unlock()

	t := s.exec.wf.TaskByID(out.taskID)
	if t == nil || t.Status.Terminal() {
		return
	}
	now := time.Now()
	t.CompletedAt = &now

	if out.taskErr == nil {
		t.Status = types.StatusCompleted
		t.Result = out.result
		s.metrics.RecordTask(t.WorkerID, true, t.ProcessingTime)
		logging.Scheduler("task %s completed worker=%s attempts=%d elapsed=%v",
			t.ID, t.WorkerID, t.Attempts, t.ProcessingTime)
		return
	}

	// A task interrupted by cancellation terminates cancelled, not failed.
	if s.cancelling {
		t.Status = types.StatusCancelled
		t.Error = out.taskErr
		s.metrics.RecordTask(t.WorkerID, false, t.ProcessingTime)
		return
	}

	t.Status = types.StatusFailed
	t.Error = out.taskErr
	s.metrics.RecordTask(t.WorkerID, false, t.ProcessingTime)
	logging.Scheduler("task %s failed worker=%s kind=%s: %s",
		t.ID, t.WorkerID, out.taskErr.Kind, out.taskErr.Message)

	// Everything downstream of a permanent failure can never run.
	for id := range transitiveDependents(s.exec.wf.Tasks, t.ID) {
		dep := s.exec.wf.TaskByID(id)
		if dep == nil || dep.Status != types.StatusPending {
			continue
		}
		dep.Status = types.StatusCancelled
		dep.Error = types.NewTaskError(types.ErrKindDependencyFailed,
			"dependency %s failed: %s", t.ID, out.taskErr.Message)
		done := now
		dep.CompletedAt = &done
	}
}

// cancelPending marks every still-pending task cancelled and flips the
// scheduler into cancellation mode.
func (s *scheduler) cancelPending() {
	s.exec.mu.Lock()
	defer s.exec.mu.Unlock()
	s.cancelling = true
	now := time.Now()
	for _, t := range s.exec.wf.Tasks {
		if t.Status == types.StatusPending {
			t.Status = types.StatusCancelled
			t.CompletedAt = &now
		}
	}
}

// abandonRunning force-cancels tasks still running after the grace period.
func (s *scheduler) abandonRunning() {
	s.exec.mu.Lock()
	defer s.exec.mu.Unlock()
	now := time.Now()
	for _, t := range s.exec.wf.Tasks {
		if t.Status == types.StatusRunning {
			t.Status = types.StatusCancelled
			t.Error = types.NewTaskError(types.ErrKindCancellationGrace,
				"task %s abandoned after %v cancellation grace", t.ID, s.cfg.CancellationGrace)
			t.CompletedAt = &now
			logging.Scheduler("task %s abandoned after cancellation grace", t.ID)
		}
	}
}

// failStuck marks tasks that can never become ready. Validation rejects
// unknown dependencies and cycles, so this fires only for workflows built
// outside CreateWorkflow.
func (s *scheduler) failStuck() {
	s.exec.mu.Lock()
	defer s.exec.mu.Unlock()
	now := time.Now()
	for _, t := range s.exec.wf.Tasks {
		if t.Status == types.StatusPending {
			t.Status = types.StatusFailed
			t.Error = types.NewTaskError(types.ErrKindDeadlock,
				"task %s can never become ready", t.ID)
			t.CompletedAt = &now
			logging.Scheduler("task %s stuck: dependencies can never complete", t.ID)
		}
	}
}

func (s *scheduler) allTerminal() bool {
	s.exec.mu.RLock()
	defer s.exec.mu.RUnlock()
	for _, t := range s.exec.wf.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}
