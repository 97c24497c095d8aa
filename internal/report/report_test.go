package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/promptgrid/internal/executor"
	"github.com/vk/promptgrid/internal/plan"
)

func testPlan(ids ...string) *plan.Plan {
	p := &plan.Plan{Script: "poster"}
	for i, id := range ids {
		p.Instances = append(p.Instances, plan.Instance{Index: i, ID: id, Step: id})
	}
	return p
}

func fixedClock(r *Reporter, start time.Time, elapsed time.Duration) {
	r.started = start
	r.now = func() time.Time { return start.Add(elapsed) }
}

func TestReporter_SummaryKeepsPlanOrder(t *testing.T) {
	// --- Arrange ---
	r := New("run-1", "poster", "outputs", testPlan("a", "b", "c"))
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedClock(r, start, 1500*time.Millisecond)

	// --- Act ---
	r.StepFinished(executor.Result{Index: 2, ID: "c", Step: "c", State: executor.Succeeded, Attempts: 1, Outputs: []string{"outputs/c.png"}})
	r.StepFinished(executor.Result{Index: 0, ID: "a", Step: "a", State: executor.TimedOut, Attempts: 3, Kind: executor.KindTimeout, Err: errors.New("step a timed out after 1s")})
	r.StepFinished(executor.Result{Index: 1, ID: "b", Step: "b", State: executor.Succeeded, Attempts: 2, Duration: 250 * time.Millisecond, Outputs: []string{"outputs/b.png"}})
	s := r.Summary(nil)

	// --- Assert ---
	assert.Equal(t, []string{"a", "b", "c"}, []string{s.Steps[0].ID, s.Steps[1].ID, s.Steps[2].ID})
	assert.Equal(t, Counts{Total: 3, Succeeded: 2, TimedOut: 1}, s.Counts)
	assert.Equal(t, []string{"outputs/b.png", "outputs/c.png"}, s.Outputs)
	assert.Equal(t, StatusPartial, s.Status)
	assert.Equal(t, 1500*time.Millisecond, s.Elapsed())
	assert.Equal(t, int64(250), s.Steps[1].DurationMS)
	assert.False(t, s.OK())
	assert.Equal(t, 1, s.Unsuccessful())
}

func TestReporter_AllFailedIsStillASummary(t *testing.T) {
	// --- Arrange ---
	r := New("run-2", "", "outputs", testPlan("a", "b"))
	for i, id := range []string{"a", "b"} {
		r.StepFinished(executor.Result{Index: i, ID: id, State: executor.Failed, Kind: executor.KindPermanent, Err: errors.New("rejected")})
	}

	// --- Act ---
	s := r.Summary(nil)

	// --- Assert ---
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, Counts{Total: 2, Failed: 2}, s.Counts)
	assert.Empty(t, s.Outputs)
	assert.NotNil(t, s.Outputs)
}

func TestReporter_UnfinishedStepsAreCancelled(t *testing.T) {
	// --- Arrange ---
	p := testPlan("a", "b", "c")
	r := New("run-3", "", "outputs", p)
	r.StepStarted(p.Instances[0])
	r.StepFinished(executor.Result{Index: 0, ID: "a", State: executor.Succeeded})
	r.StepStarted(p.Instances[1])

	// --- Act ---
	s := r.Summary(&executor.CancelledError{Skipped: 1, Cause: context.Canceled})

	// --- Assert ---
	assert.Equal(t, StatusCancelled, s.Status)
	assert.Equal(t, Counts{Total: 3, Succeeded: 1, Cancelled: 2}, s.Counts)
	for _, st := range s.Steps {
		assert.NotEqual(t, executor.Pending, st.State)
		assert.NotEqual(t, executor.InFlight, st.State)
	}
	assert.Contains(t, s.Error, "run cancelled")
}

func TestReporter_ProgressDoesNotCloseOutSteps(t *testing.T) {
	// --- Arrange ---
	p := testPlan("a", "b", "c")
	r := New("run-p", "", "outputs", p)

	// --- Act ---
	r.StepStarted(p.Instances[0])
	r.StepStarted(p.Instances[1])
	r.StepFinished(executor.Result{Index: 1, ID: "b", Step: "b", State: executor.Failed, Attempts: 1})
	got := r.Progress()

	// --- Assert ---
	want := Progress{RunID: "run-p", Counts: Counts{Total: 3, Failed: 1}, Pending: 1, InFlight: 1}
	assert.Equal(t, want, got)
	assert.Equal(t, want, r.Progress(), "progress is repeatable")
}

func TestReporter_EmptyPlanSucceeds(t *testing.T) {
	s := New("run-4", "", "outputs", &plan.Plan{}).Summary(nil)
	assert.True(t, s.OK())
	assert.Equal(t, StatusSucceeded, s.Status)
}

func TestAborted(t *testing.T) {
	// --- Arrange ---
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	// --- Act ---
	s := Aborted("run-7", "poster", at, errors.New("validation failed"))

	// --- Assert ---
	assert.False(t, s.OK())
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, Counts{}, s.Counts)
	assert.Empty(t, s.Steps)
	assert.Equal(t, "validation failed", s.Error)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, s, "json"))
	assert.Contains(t, buf.String(), `"steps": []`)
}

func TestRender(t *testing.T) {
	// --- Arrange ---
	r := New("run-5", "", "outputs", testPlan("hero", `card["noir"]`))
	fixedClock(r, time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC), 2*time.Second)
	r.StepFinished(executor.Result{Index: 0, ID: "hero", State: executor.Succeeded, Attempts: 1, Outputs: []string{"outputs/hero.png"}})
	r.StepFinished(executor.Result{Index: 1, ID: `card["noir"]`, State: executor.Failed, Attempts: 1, Kind: executor.KindPermanent, Err: errors.New("txt2img: server returned 422:\nbad sampler")})
	s := r.Summary(nil)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, s, FormatText))
		out := buf.String()
		assert.Contains(t, out, "STEP")
		assert.Contains(t, out, "outputs/hero.png")
		assert.Contains(t, out, "[permanent] txt2img: server returned 422: bad sampler")
		assert.Contains(t, out, "Run run-5 partial in 2s: 1 succeeded, 1 failed, 0 timed out, 0 cancelled (of 2).")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, s, FormatJSON))
		var decoded Summary
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		if diff := cmp.Diff(s.Steps, decoded.Steps); diff != "" {
			t.Errorf("steps mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, s.Counts, decoded.Counts)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, Render(&bytes.Buffer{}, s, "yaml"))
	})
}

func TestPersistAndHistory(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run-20250501-120000-poster")
	r := New("run-6", "poster", runDir, testPlan("hero"))
	r.StepFinished(executor.Result{Index: 0, ID: "hero", State: executor.Succeeded, Outputs: []string{filepath.Join(runDir, "hero.png")}})
	s := r.Summary(nil)

	// --- Act ---
	path, err := Persist(runDir, s)
	require.NoError(t, err)
	require.NoError(t, AppendHistory(dir, NewHistoryEntry(s)))
	require.NoError(t, AppendHistory(dir, NewHistoryEntry(s)))

	// --- Assert ---
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var persisted Summary
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, "run-6", persisted.RunID)

	f, err := os.Open(filepath.Join(dir, HistoryFile))
	require.NoError(t, err)
	defer f.Close()
	var lines []HistoryEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e HistoryEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		lines = append(lines, e)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "poster", lines[0].RunName)
	assert.Equal(t, StatusSucceeded, lines[0].Status)
	assert.Equal(t, []string{filepath.Join(runDir, "hero.png")}, lines[0].ImagePaths)
}
