package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/taskpilot/internal/plan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedPlan() *plan.Plan {
	p := plan.New("ship the feature", []plan.Task{
		{ID: "a", Description: "scan", Kind: plan.KindAnalyzeCode, Status: plan.TaskCompleted,
			Result: &plan.Result{TaskID: "a", Success: true, Output: "3 files", Attempts: 1,
				Duration: 120 * time.Millisecond}},
		{ID: "b", Description: "build", Kind: plan.KindRunCommand, Status: plan.TaskFailed,
			Result: &plan.Result{TaskID: "b", Success: false, Error: "exit 1", Attempts: 3,
				Duration: 4 * time.Second}},
		{ID: "c", Description: "never ran", Kind: plan.KindListDir},
	})
	p.Status = plan.PlanFailed
	return p
}

func TestArchiveRunAndRecent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.ArchiveRun(finishedPlan()))

	runs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, "ship the feature", run.Description)
	assert.Equal(t, string(plan.PlanFailed), run.Status)
	assert.Equal(t, 3, run.TasksTotal)
	assert.Equal(t, 1, run.TasksCompleted)
	assert.Equal(t, 1, run.TasksFailed)
	assert.False(t, run.ArchivedAt.IsZero())
}

func TestArchiveRunNilIsNoOp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ArchiveRun(nil))

	runs, err := s.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		p := plan.New("run", nil)
		p.Status = plan.PlanCompleted
		require.NoError(t, s.ArchiveRun(p))
		time.Sleep(5 * time.Millisecond) // distinct archived_at
	}

	runs, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, !runs[0].ArchivedAt.Before(runs[1].ArchivedAt),
		"runs must come back newest first")
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.ArchiveRun(finishedPlan()))
	require.NoError(t, s.Close())

	s2, err := New(dir)
	require.NoError(t, err)
	defer s2.Close()

	runs, err := s2.Recent(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
