package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), zaptest.NewLogger(t), config.JournalConfig{
		Enabled: true,
		Driver:  "sqlite",
		Path:    filepath.Join(t.TempDir(), "nested", "journal.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RunLifecycle(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, j.BeginRun(ctx, "run-1", "open Notes and type Hello", start))
	require.NoError(t, j.RecordStep(ctx, Step{RunID: "run-1", Number: 0, App: "Notes", Output: `{"action":[{"tap":{"index":7}}]}`, Results: `[{"long_term_memory":"Clicked"}]`, Recorded: start.Add(time.Second)}))
	require.NoError(t, j.RecordStep(ctx, Step{RunID: "run-1", Number: 1, App: "Notes", Failure: "LLM Failure", Recorded: start.Add(2 * time.Second)}))
	// The retry of a failed step is a new attempt; the failure is kept.
	require.NoError(t, j.RecordStep(ctx, Step{RunID: "run-1", Number: 1, App: "Notes", Output: `{}`, Recorded: start.Add(3 * time.Second)}))
	require.NoError(t, j.FinishRun(ctx, "run-1", true, true, "done", start.Add(4*time.Second)))

	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, Run{
		ID:         "run-1",
		Task:       "open Notes and type Hello",
		StartedAt:  start,
		FinishedAt: start.Add(4 * time.Second),
		Steps:      2,
		Done:       true,
		Success:    true,
		Reason:     "done",
	}, runs[0])

	steps, err := j.Steps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].Attempt, steps[1].Attempt, steps[2].Attempt})
	assert.Equal(t, []int{0, 1, 1}, []int{steps[0].Number, steps[1].Number, steps[2].Number})
	assert.Equal(t, `{"action":[{"tap":{"index":7}}]}`, steps[0].Output)
	assert.Equal(t, "LLM Failure", steps[1].Failure)
	assert.Equal(t, start.Add(2*time.Second), steps[1].Recorded)
	assert.Equal(t, `{}`, steps[2].Output)
	assert.Empty(t, steps[2].Failure)
	assert.Equal(t, start.Add(3*time.Second), steps[2].Recorded)
}

func TestJournal_RepeatedFailuresKeepSeparateRows(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, j.BeginRun(ctx, "run-1", "open Notes", start))
	for i, cause := range []string{"timeout", "malformed output", "quota"} {
		require.NoError(t, j.RecordStep(ctx, Step{RunID: "run-1", Number: 0, Failure: cause, Recorded: start.Add(time.Duration(i) * time.Second)}))
	}

	steps, err := j.Steps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, cause := range []string{"timeout", "malformed output", "quota"} {
		assert.Equal(t, i+1, steps[i].Attempt)
		assert.Equal(t, 0, steps[i].Number)
		assert.Equal(t, cause, steps[i].Failure)
	}

	runs, err := j.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Steps, "attempts at one step count once")
}

func TestJournal_UnknownRun(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	assert.ErrorIs(t, j.FinishRun(ctx, "ghost", false, false, "x", time.Now()), ErrRunNotFound)
	assert.ErrorIs(t, j.RecordStep(ctx, Step{RunID: "ghost", Recorded: time.Now()}), ErrRunNotFound)

	steps, err := j.Steps(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, steps, "a failed step insert is rolled back")
}

func TestJournal_RunsNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.BeginRun(ctx, id, "task "+id, base.Add(time.Duration(i)*time.Minute)))
	}

	runs, err := j.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.True(t, runs[0].FinishedAt.IsZero())
}

func TestJournal_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	cfg := config.JournalConfig{Enabled: true, Driver: "sqlite", Path: path}
	ctx := context.Background()

	j1, err := Open(ctx, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	require.NoError(t, j1.BeginRun(ctx, "r", "t", time.Now()))
	require.NoError(t, j1.Close())

	j2, err := Open(ctx, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	defer j2.Close()
	runs, err := j2.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRebind(t *testing.T) {
	pg := &Journal{postgres: true}
	assert.Equal(t, "UPDATE runs SET a = $1, b = $2 WHERE id = $3", pg.rebind("UPDATE runs SET a = ?, b = ? WHERE id = ?"))

	lite := &Journal{}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), zaptest.NewLogger(t), config.JournalConfig{Driver: "mysql"})
	assert.Error(t, err)
}
