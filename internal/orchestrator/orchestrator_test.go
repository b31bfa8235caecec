package orchestrator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordloom/internal/config"
	"wordloom/internal/types"
)

// mockWorker runs a caller-supplied function as its execute step.
type mockWorker struct {
	id types.WorkerID
	fn func(ctx context.Context, input types.TaskInput) (*types.TaskResult, error)
}

func (m *mockWorker) Metadata() types.WorkerMetadata {
	return types.WorkerMetadata{ID: m.id, Name: string(m.id)}
}
func (m *mockWorker) Capabilities() types.WorkerCapabilities { return types.WorkerCapabilities{} }
func (m *mockWorker) Health() types.HealthStatus             { return types.HealthStatus{Healthy: true} }
func (m *mockWorker) Execute(ctx context.Context, input types.TaskInput) (*types.TaskResult, error) {
	return m.fn(ctx, input)
}

type mockRegistry map[types.WorkerID]types.Worker

func (r mockRegistry) Get(id types.WorkerID) (types.Worker, bool) {
	w, ok := r[id]
	return w, ok
}
func (r mockRegistry) List() []types.Worker {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	out := make([]types.Worker, 0, len(r))
	for _, id := range ids {
		out = append(out, r[types.WorkerID(id)])
	}
	return out
}

func succeedAfter(d time.Duration) func(ctx context.Context, input types.TaskInput) (*types.TaskResult, error) {
	return func(ctx context.Context, input types.TaskInput) (*types.TaskResult, error) {
		select {
		case <-ctx.Done():
			return nil, types.NewTaskError(types.ErrKindDeadlineExceeded, "cancelled: %v", ctx.Err())
		case <-time.After(d):
		}
		return &types.TaskResult{
			Status:     types.StatusCompleted,
			Content:    "done " + input.TaskID,
			Confidence: 0.9,
		}, nil
	}
}

func fastConfig() config.OrchestratorConfig {
	cfg := config.Default().Orchestrator
	cfg.RetryBackoffBase = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.TaskTimeout = 2 * time.Second
	cfg.CancellationGrace = 2 * time.Second
	return cfg
}

func decisionWith(subtasks ...types.Subtask) *types.RoutingDecision {
	return &types.RoutingDecision{
		PrimaryWorker:       subtasks[0].WorkerID,
		TaskBreakdown:       subtasks,
		Complexity:          types.ComplexityMedium,
		Risk:                types.RiskLow,
		RequiredPermissions: types.PermissionCollaborative,
	}
}

func testRequest() types.Request {
	return types.Request{
		Content: "draft a short note",
		Kind:    types.TaskKindCreate,
		Options: types.RequestOptions{PermissionLevel: types.PermissionCollaborative},
	}
}

func TestCreateWorkflowRejectsCycle(t *testing.T) {
	o := New(fastConfig(), mockRegistry{}, nil)

	_, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1, DependsOn: []string{"b"}},
		types.Subtask{ID: "b", WorkerID: "w", Priority: 1, DependsOn: []string{"a"}},
	), testRequest())
	require.ErrorIs(t, err, types.ErrCyclicDependency)

	// Rejected workflows never count.
	assert.Zero(t, o.Metrics().TotalWorkflows)
}

func TestCreateWorkflowRejectsUnknownDependency(t *testing.T) {
	o := New(fastConfig(), mockRegistry{}, nil)
	_, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1, DependsOn: []string{"ghost"}},
	), testRequest())
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestCreateWorkflowRejectsPermissionOverreach(t *testing.T) {
	o := New(fastConfig(), mockRegistry{}, nil)

	d := decisionWith(types.Subtask{ID: "a", WorkerID: "w", Priority: 1})
	d.RequiredPermissions = types.PermissionSemiAutonomous
	req := testRequest()
	req.Options.PermissionLevel = types.PermissionAssistant

	_, err := o.CreateWorkflow(d, req)
	assert.ErrorIs(t, err, types.ErrPermissionOverreach)
	assert.Zero(t, o.Metrics().TotalWorkflows)
}

func TestExecuteHappyPath(t *testing.T) {
	registry := mockRegistry{"w": &mockWorker{id: "w", fn: succeedAfter(5 * time.Millisecond)}}
	o := New(fastConfig(), registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "t1", WorkerID: "w", Priority: 1},
		types.Subtask{ID: "t2", WorkerID: "w", Priority: 3, DependsOn: []string{"t1"}},
	), testRequest())
	require.NoError(t, err)

	result, err := o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Equal(t, "t2", result.FinalTaskID)
	assert.Equal(t, "done t2", result.FinalContent)

	m := o.Metrics()
	assert.EqualValues(t, 1, m.TotalWorkflows)
	assert.EqualValues(t, 1, m.Successful)
	assert.EqualValues(t, 2, m.PerWorker["w"].TotalTasks)
}

func TestDependencyOrderAndUpstream(t *testing.T) {
	var mu sync.Mutex
	var order []string
	upstream := map[string]string{}

	registry := mockRegistry{"w": &mockWorker{id: "w", fn: func(ctx context.Context, in types.TaskInput) (*types.TaskResult, error) {
		mu.Lock()
		order = append(order, in.TaskID)
		for k, v := range in.Upstream {
			upstream[k] = v
		}
		mu.Unlock()
		return &types.TaskResult{Status: types.StatusCompleted, Content: "out " + in.TaskID, Confidence: 1}, nil
	}}}
	o := New(fastConfig(), registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1},
		types.Subtask{ID: "b", WorkerID: "w", Priority: 3, DependsOn: []string{"a"}},
	), testRequest())
	require.NoError(t, err)

	_, err = o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, "out a", upstream["a"])
}

func TestDependencyFailureCascade(t *testing.T) {
	registry := mockRegistry{
		"bad": &mockWorker{id: "bad", fn: func(ctx context.Context, in types.TaskInput) (*types.TaskResult, error) {
			return nil, types.NewTaskError(types.ErrKindInvalidInput, "unusable input")
		}},
		"good": &mockWorker{id: "good", fn: succeedAfter(time.Millisecond)},
	}
	o := New(fastConfig(), registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "bad", Priority: 1},
		types.Subtask{ID: "b", WorkerID: "good", Priority: 2, DependsOn: []string{"a"}},
		types.Subtask{ID: "c", WorkerID: "good", Priority: 2, DependsOn: []string{"a"}},
	), testRequest())
	require.NoError(t, err)

	result, err := o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, result.Status)

	final, err := o.Workflow(wf.ID)
	require.NoError(t, err)
	a, b, c := final.TaskByID("a"), final.TaskByID("b"), final.TaskByID("c")

	assert.Equal(t, types.StatusFailed, a.Status)
	assert.Equal(t, types.ErrKindInvalidInput, a.Error.Kind)
	for _, dep := range []*types.Task{b, c} {
		assert.Equal(t, types.StatusCancelled, dep.Status)
		require.NotNil(t, dep.Error)
		assert.Equal(t, types.ErrKindDependencyFailed, dep.Error.Kind)
		assert.Zero(t, dep.ProcessingTime)
	}
	assert.NotZero(t, a.ProcessingTime)
}

func TestParallelismCap(t *testing.T) {
	var running, peak atomic.Int64

	registry := mockRegistry{"w": &mockWorker{id: "w", fn: func(ctx context.Context, in types.TaskInput) (*types.TaskResult, error) {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return &types.TaskResult{Status: types.StatusCompleted, Content: "ok", Confidence: 1}, nil
	}}}

	cfg := fastConfig()
	cfg.Parallelism = 3
	o := New(cfg, registry, nil)

	subtasks := make([]types.Subtask, 6)
	for i := range subtasks {
		subtasks[i] = types.Subtask{ID: string(rune('a' + i)), WorkerID: "w", Priority: 2}
	}
	wf, err := o.CreateWorkflow(decisionWith(subtasks...), testRequest())
	require.NoError(t, err)

	result, err := o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.LessOrEqual(t, peak.Load(), int64(3))

	final, err := o.Workflow(wf.ID)
	require.NoError(t, err)
	for _, task := range final.Tasks {
		assert.Equal(t, types.StatusCompleted, task.Status)
	}
}

func TestReadyOrderPrefersPriority(t *testing.T) {
	var mu sync.Mutex
	var order []string

	registry := mockRegistry{"w": &mockWorker{id: "w", fn: func(ctx context.Context, in types.TaskInput) (*types.TaskResult, error) {
		mu.Lock()
		order = append(order, in.TaskID)
		mu.Unlock()
		return &types.TaskResult{Status: types.StatusCompleted, Content: "ok", Confidence: 1}, nil
	}}}

	cfg := fastConfig()
	cfg.Parallelism = 1
	o := New(cfg, registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "low", WorkerID: "w", Priority: 1},
		types.Subtask{ID: "high", WorkerID: "w", Priority: 4},
		types.Subtask{ID: "mid", WorkerID: "w", Priority: 2},
	), testRequest())
	require.NoError(t, err)

	_, err = o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestTransientRetrySucceeds(t *testing.T) {
	var calls atomic.Int64
	registry := mockRegistry{"w": &mockWorker{id: "w", fn: func(ctx context.Context, in types.TaskInput) (*types.TaskResult, error) {
		if calls.Add(1) < 3 {
			return nil, types.NewTaskError(types.ErrKindRateLimit, "throttled")
		}
		return &types.TaskResult{Status: types.StatusCompleted, Content: "ok", Confidence: 1}, nil
	}}}
	o := New(fastConfig(), registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1},
	), testRequest())
	require.NoError(t, err)

	result, err := o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.EqualValues(t, 3, calls.Load())

	final, err := o.Workflow(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, final.TaskByID("a").Attempts)
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	registry := mockRegistry{"w": &mockWorker{id: "w", fn: func(ctx context.Context, in types.TaskInput) (*types.TaskResult, error) {
		calls.Add(1)
		return nil, types.NewTaskError(types.ErrKindPermissionDenied, "not allowed")
	}}}
	o := New(fastConfig(), registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1},
	), testRequest())
	require.NoError(t, err)

	result, err := o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.EqualValues(t, 1, calls.Load())
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrKindPermissionDenied, result.Error.Kind)
}

func TestMissingWorkerFailsTask(t *testing.T) {
	o := New(fastConfig(), mockRegistry{}, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "ghost", Priority: 1},
	), testRequest())
	require.NoError(t, err)

	result, err := o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrKindWorkerUnavailable, result.Error.Kind)
}

func TestCancellationDuringExecution(t *testing.T) {
	registry := mockRegistry{"w": &mockWorker{id: "w", fn: succeedAfter(5 * time.Second)}}
	o := New(fastConfig(), registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1},
		types.Subtask{ID: "b", WorkerID: "w", Priority: 1, DependsOn: []string{"a"}},
	), testRequest())
	require.NoError(t, err)

	done := make(chan *WorkflowResult, 1)
	go func() {
		result, execErr := o.ExecuteWorkflow(context.Background(), wf.ID)
		assert.NoError(t, execErr)
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	transitioned, err := o.Cancel(wf.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)

	select {
	case result := <-done:
		assert.Equal(t, types.StatusCancelled, result.Status)
	case <-time.After(4 * time.Second):
		t.Fatal("workflow did not terminate within the cancellation grace period")
	}

	// Cancelling a terminal workflow reports no transition.
	again, err := o.Cancel(wf.ID)
	require.NoError(t, err)
	assert.False(t, again)

	final, err := o.Workflow(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, final.TaskByID("b").Status)
}

func TestCancelBeforeExecution(t *testing.T) {
	o := New(fastConfig(), mockRegistry{}, nil)
	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1},
	), testRequest())
	require.NoError(t, err)

	transitioned, err := o.Cancel(wf.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)

	snap, err := o.Status(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, snap.Status)
}

func TestCancelUnknownWorkflow(t *testing.T) {
	o := New(fastConfig(), mockRegistry{}, nil)
	_, err := o.Cancel("missing")
	assert.ErrorIs(t, err, types.ErrWorkflowNotFound)
}

func TestPruneExpired(t *testing.T) {
	registry := mockRegistry{"w": &mockWorker{id: "w", fn: succeedAfter(time.Millisecond)}}
	cfg := fastConfig()
	cfg.Retention = time.Nanosecond
	o := New(cfg, registry, nil)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1},
	), testRequest())
	require.NoError(t, err)
	_, err = o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	removed := o.PruneExpired()
	assert.Contains(t, removed, wf.ID)

	_, err = o.Status(wf.ID)
	assert.ErrorIs(t, err, types.ErrWorkflowNotFound)
}

func TestApplyConfigAffectsSubsequentWorkflows(t *testing.T) {
	var calls atomic.Int64
	registry := mockRegistry{"w": &mockWorker{id: "w", fn: func(ctx context.Context, in types.TaskInput) (*types.TaskResult, error) {
		calls.Add(1)
		return nil, types.NewTaskError(types.ErrKindRateLimit, "throttled")
	}}}
	o := New(fastConfig(), registry, nil)

	reloaded := fastConfig()
	reloaded.MaxRetries = 0
	o.ApplyConfig(reloaded)

	wf, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 1},
	), testRequest())
	require.NoError(t, err)

	result, err := o.ExecuteWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, result.Status)
	// No retries after the reload disabled them.
	assert.EqualValues(t, 1, calls.Load())
}

func TestValidateWorkflowPriorities(t *testing.T) {
	o := New(fastConfig(), mockRegistry{}, nil)
	_, err := o.CreateWorkflow(decisionWith(
		types.Subtask{ID: "a", WorkerID: "w", Priority: 9},
	), testRequest())
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}
