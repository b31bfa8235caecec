package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordloom/internal/types"
)

// mockBackend returns canned responses and counts calls.
type mockBackend struct {
	content string
	finish  string
	err     error
	delay   time.Duration
	calls   int
}

func (m *mockBackend) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	finish := m.finish
	if finish == "" {
		finish = "STOP"
	}
	return &types.GenerateResponse{Content: m.content, FinishReason: finish}, nil
}

func testInput(content string) types.TaskInput {
	return types.TaskInput{
		TaskID:      "t1",
		WorkflowID:  "wf1",
		Kind:        types.TaskKindCreate,
		Description: "write something",
		Content:     content,
		ContentType: types.ContentArticle,
	}
}

func TestExecuteSuccess(t *testing.T) {
	gen := &mockBackend{content: strings.Repeat("word ", 250)}
	w := NewContentWriter(gen)

	result, err := w.Execute(context.Background(), testInput("write about tides"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Equal(t, 1, gen.calls)
	assert.InDelta(t, 1.0, result.Confidence, 0.001) // clean stop + long output
}

func TestExecuteConfidenceMonotone(t *testing.T) {
	short := &mockBackend{content: "tiny", finish: "MAX_TOKENS"}
	long := &mockBackend{content: strings.Repeat("word ", 250), finish: "STOP"}

	shortRes, err := NewContentWriter(short).Execute(context.Background(), testInput("x"))
	require.NoError(t, err)
	longRes, err := NewContentWriter(long).Execute(context.Background(), testInput("x"))
	require.NoError(t, err)

	assert.Less(t, shortRes.Confidence, longRes.Confidence)
	assert.GreaterOrEqual(t, shortRes.Confidence, 0.0)
	assert.LessOrEqual(t, longRes.Confidence, 1.0)
}

func TestExecuteRejectsOversizedInput(t *testing.T) {
	gen := &mockBackend{content: "ok"}
	w := NewResearcher(gen) // 40k char limit

	result, err := w.Execute(context.Background(), testInput(strings.Repeat("a", 40001)))
	require.Error(t, err)
	var te *types.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrKindInvalidInput, te.Kind)
	assert.False(t, te.Transient())
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Zero(t, gen.calls)
}

func TestExecuteTimeout(t *testing.T) {
	gen := &mockBackend{content: "ok", delay: 200 * time.Millisecond}
	w := NewContentWriter(gen)
	w.timeout = 20 * time.Millisecond

	_, err := w.Execute(context.Background(), testInput("x"))
	require.Error(t, err)
	var te *types.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrKindDeadlineExceeded, te.Kind)
	assert.True(t, te.Transient())
}

func TestHealthDegradesOnFailures(t *testing.T) {
	gen := &mockBackend{err: errors.New("boom")}
	w := NewContentWriter(gen)

	assert.True(t, w.Health().Healthy) // no samples yet

	for i := 0; i < 10; i++ {
		_, _ = w.Execute(context.Background(), testInput("x"))
	}
	health := w.Health()
	assert.False(t, health.Healthy)
	assert.NotEmpty(t, health.Issues)
	assert.Zero(t, health.RecentSuccessRate)
}

func TestPerfStatsRolling(t *testing.T) {
	stats := NewPerfStats()
	for i := 0; i < 4; i++ {
		stats.Record(TaskSummary{
			TaskID:         "t",
			Success:        i%2 == 0,
			Confidence:     0.8,
			ProcessingTime: 10 * time.Millisecond,
			Timestamp:      time.Now(),
		})
	}

	snap := stats.Snapshot()
	assert.EqualValues(t, 4, snap.Total)
	assert.EqualValues(t, 2, snap.Succeeded)
	assert.InDelta(t, 0.5, snap.RecentSuccess, 0.001)
	assert.InDelta(t, 0.8, snap.AvgConfidence, 0.001)
	assert.Equal(t, 10*time.Millisecond, snap.AvgProcessing)
}

func TestPerfStatsRingBounded(t *testing.T) {
	stats := NewPerfStats()
	for i := 0; i < recentBufferSize+50; i++ {
		stats.Record(TaskSummary{TaskID: "t", Success: true, Timestamp: time.Now()})
	}
	snap := stats.Snapshot()
	assert.EqualValues(t, recentBufferSize+50, snap.Total)
	assert.Equal(t, recentBufferSize, snap.RecentRecorded)
}

func TestDefaultRegistry(t *testing.T) {
	reg := NewDefaultRegistry(nil)

	workers := reg.List()
	require.Len(t, workers, 8)
	// List is sorted by id for deterministic routing.
	for i := 1; i < len(workers); i++ {
		assert.Less(t, string(workers[i-1].Metadata().ID), string(workers[i].Metadata().ID))
	}

	w, ok := reg.Get(types.WorkerContentWriter)
	require.True(t, ok)
	assert.Equal(t, types.WorkerContentWriter, w.Metadata().ID)

	_, ok = reg.Get("nope")
	assert.False(t, ok)
}

func TestUpstreamBlockRendering(t *testing.T) {
	in := testInput("original")
	in.Upstream = map[string]string{"t1": "draft text"}
	block := upstreamBlock(in)
	assert.Contains(t, block, "upstream t1")
	assert.Contains(t, block, "draft text")

	in.Upstream = nil
	assert.Equal(t, "original", upstreamBlock(in))
}

func TestUpstreamBlockOrdersSections(t *testing.T) {
	in := testInput("x")
	in.Upstream = map[string]string{"t3": "third", "t1": "first", "t2": "second"}

	block := upstreamBlock(in)
	i1 := strings.Index(block, "upstream t1")
	i2 := strings.Index(block, "upstream t2")
	i3 := strings.Index(block, "upstream t3")
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0, block)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
}
