package router

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordloom/internal/config"
	"wordloom/internal/types"
	"wordloom/internal/worker"
)

// mockBackend returns a fixed response or error for every call.
type mockBackend struct {
	content string
	err     error
	calls   atomic.Int64
}

func (m *mockBackend) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &types.GenerateResponse{Content: m.content, FinishReason: "STOP"}, nil
}

func newTestRouter(t *testing.T, gen types.GenerationBackend) *Router {
	t.Helper()
	cfg := config.Default().Router
	return New(cfg, worker.NewDefaultRegistry(nil), gen)
}

func TestRouteHappyPathArticle(t *testing.T) {
	r := newTestRouter(t, nil)

	d, err := r.Route(context.Background(), types.Request{
		Content: "Write a 900-word article on urban beekeeping",
		Kind:    types.TaskKindCreate,
		Options: types.RequestOptions{PermissionLevel: types.PermissionCollaborative},
	})
	require.NoError(t, err)

	assert.Equal(t, types.WorkerContentWriter, d.PrimaryWorker)
	assert.Empty(t, d.SupportingWorkers)
	assert.Len(t, d.TaskBreakdown, 1)
	assert.Equal(t, types.ComplexityMedium, d.Complexity)
	assert.Equal(t, types.RiskLow, d.Risk)
}

func TestRouteResearchAugmented(t *testing.T) {
	r := newTestRouter(t, nil)

	d, err := r.Route(context.Background(), types.Request{
		Content: "Summarize the latest research on CRISPR base editing",
		Kind:    types.TaskKindSummarize,
	})
	require.NoError(t, err)

	assert.True(t, d.Features.RequiresResearch)
	// Kind affinity keeps the content writer primary; research augments.
	assert.Equal(t, types.WorkerContentWriter, d.PrimaryWorker)
	require.Contains(t, d.SupportingWorkers, types.WorkerResearch)

	// The research subtask gathers grounding in parallel with the draft.
	for _, sub := range d.TaskBreakdown {
		if sub.WorkerID == types.WorkerResearch {
			assert.Empty(t, sub.DependsOn)
		}
	}
}

func TestRouteDeterministic(t *testing.T) {
	req := types.Request{
		Content: "Write a comprehensive multi-chapter guide on container networking",
		Kind:    types.TaskKindCreate,
	}

	r1 := newTestRouter(t, nil)
	r2 := newTestRouter(t, nil)
	d1, err := r1.Route(context.Background(), req)
	require.NoError(t, err)
	d2, err := r2.Route(context.Background(), req)
	require.NoError(t, err)

	if diff := cmp.Diff(d1, d2); diff != "" {
		t.Errorf("identical requests produced different decisions (-first +second):\n%s", diff)
	}
}

func TestRouteRejectsEmptyContent(t *testing.T) {
	r := newTestRouter(t, nil)
	_, err := r.Route(context.Background(), types.Request{Content: "   "})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestRouteFallbackMarkerOnAnalysisFailure(t *testing.T) {
	gen := &mockBackend{err: errors.New("backend down")}
	r := newTestRouter(t, gen)

	d, err := r.Route(context.Background(), types.Request{
		Content: "Write an article about tide pools",
		Kind:    types.TaskKindCreate,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.Reasoning, "fallback due to analysis failure"), d.Reasoning)
}

func TestPermissionDerivation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		granted types.PermissionLevel
		want    types.PermissionLevel
	}{
		{"high risk forces assistant", "delete every chapter and overwrite the draft", "", types.PermissionAssistant},
		{"medium risk collaborative", "edit the introduction for clarity", "", types.PermissionCollaborative},
		{"low risk semi autonomous", "suggest improvements to the summary", types.PermissionAutonomous, types.PermissionSemiAutonomous},
		{"default grant caps low risk", "suggest improvements to the summary", "", types.PermissionCollaborative},
		{"user may restrict", "suggest improvements to the summary", types.PermissionAssistant, types.PermissionAssistant},
		{"user cannot elevate", "edit the introduction for clarity", types.PermissionAutonomous, types.PermissionCollaborative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, nil)
			d, err := r.Route(context.Background(), types.Request{
				Content: tt.content,
				Kind:    types.TaskKindEdit,
				Options: types.RequestOptions{PermissionLevel: tt.granted},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.RequiredPermissions)
		})
	}
}

func TestQASubtaskAddedForMediumRisk(t *testing.T) {
	r := newTestRouter(t, nil)
	d, err := r.Route(context.Background(), types.Request{
		Content: "Rewrite and restructure the whole onboarding document",
		Kind:    types.TaskKindEdit,
	})
	require.NoError(t, err)
	require.True(t, d.Risk.AtLeast(types.RiskMedium))

	last := d.TaskBreakdown[len(d.TaskBreakdown)-1]
	assert.Equal(t, types.WorkerQAReviewer, last.WorkerID)
	// QA depends on every prior subtask.
	assert.Len(t, last.DependsOn, len(d.TaskBreakdown)-1)
}

func TestSupportingWorkersCapped(t *testing.T) {
	r := newTestRouter(t, nil)
	d, err := r.Route(context.Background(), types.Request{
		Content: "Write a comprehensive, detailed, creative story researching the latest findings on deep sea vents",
		Kind:    types.TaskKindCreate,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(d.SupportingWorkers), 3)
	for _, id := range d.SupportingWorkers {
		assert.NotEqual(t, d.PrimaryWorker, id)
	}
}

func TestHistoryAndStats(t *testing.T) {
	r := newTestRouter(t, nil)
	for i := 0; i < 3; i++ {
		_, err := r.Route(context.Background(), types.Request{
			Content: "Write an article about ferries",
			Kind:    types.TaskKindCreate,
		})
		require.NoError(t, err)
	}

	stats := r.Stats()
	assert.Equal(t, 3, stats.TotalRouted)
	assert.Equal(t, 3, stats.ByPrimary[types.WorkerContentWriter])
	assert.Len(t, r.History(), 3)
}

func TestHistoryBounded(t *testing.T) {
	cfg := config.Default().Router
	cfg.HistorySize = 5
	r := New(cfg, worker.NewDefaultRegistry(nil), nil)

	for i := 0; i < 12; i++ {
		_, err := r.Route(context.Background(), types.Request{
			Content: "Write an article about canals",
			Kind:    types.TaskKindCreate,
		})
		require.NoError(t, err)
	}
	assert.Len(t, r.History(), 5)
	assert.Equal(t, 12, r.Stats().TotalRouted)
}
