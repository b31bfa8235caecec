package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordloom/internal/types"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func summaryAt(id string, completed time.Time) WorkflowSummary {
	return WorkflowSummary{
		ID:             id,
		Name:           "create: article",
		Status:         types.StatusCompleted,
		TaskCount:      2,
		Permission:     types.PermissionCollaborative,
		ProjectID:      "proj1",
		FinalTaskID:    "t2",
		ProcessingTime: 1500 * time.Millisecond,
		CreatedAt:      completed.Add(-time.Minute),
		CompletedAt:    &completed,
	}
}

func TestOpenCreatesNestedDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "archive.db")
	a, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestSaveAndQueryWorkflows(t *testing.T) {
	a := openTestArchive(t)

	now := time.Now().UTC()
	require.NoError(t, a.SaveWorkflow(summaryAt("wf1", now.Add(-2*time.Hour))))
	require.NoError(t, a.SaveWorkflow(summaryAt("wf2", now)))

	got, err := a.RecentWorkflows(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "wf2", got[0].ID) // newest first
	assert.Equal(t, types.StatusCompleted, got[0].Status)
	assert.Equal(t, 1500*time.Millisecond, got[0].ProcessingTime)
	require.NotNil(t, got[0].CompletedAt)
}

func TestSaveWorkflowUpserts(t *testing.T) {
	a := openTestArchive(t)

	now := time.Now().UTC()
	first := summaryAt("wf1", now)
	require.NoError(t, a.SaveWorkflow(first))

	updated := first
	updated.Status = types.StatusFailed
	updated.ErrorKind = "guardrail_blocked"
	require.NoError(t, a.SaveWorkflow(updated))

	got, err := a.RecentWorkflows(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.StatusFailed, got[0].Status)
	assert.Equal(t, "guardrail_blocked", got[0].ErrorKind)
}

func TestSaveRoutingAndGuardrail(t *testing.T) {
	a := openTestArchive(t)

	require.NoError(t, a.SaveRouting(RoutingEntry{
		Kind:       types.TaskKindCreate,
		Summary:    "Write an article about canals",
		Primary:    types.WorkerContentWriter,
		Supporting: []types.WorkerID{types.WorkerResearch},
		Complexity: types.ComplexityMedium,
		Risk:       types.RiskLow,
		Permission: types.PermissionCollaborative,
	}))

	now := time.Now().UTC()
	require.NoError(t, a.SaveWorkflow(summaryAt("wf1", now)))
	require.NoError(t, a.SaveGuardrail(GuardrailSummary{
		WorkflowID:   "wf1",
		Accepted:     true,
		RiskScore:    0.1,
		QualityScore: 4.2,
		ReportJSON:   `{"accepted":true}`,
	}))
}

func TestSweepRemovesExpired(t *testing.T) {
	a := openTestArchive(t)

	now := time.Now().UTC()
	require.NoError(t, a.SaveWorkflow(summaryAt("old", now.Add(-48*time.Hour))))
	require.NoError(t, a.SaveWorkflow(summaryAt("fresh", now)))
	require.NoError(t, a.SaveGuardrail(GuardrailSummary{WorkflowID: "old", Accepted: true}))

	n, err := a.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := a.RecentWorkflows(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestSweepZeroRetentionIsNoop(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now().UTC()
	require.NoError(t, a.SaveWorkflow(summaryAt("wf1", now.Add(-time.Hour))))

	n, err := a.Sweep(0)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := a.RecentWorkflows(10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
