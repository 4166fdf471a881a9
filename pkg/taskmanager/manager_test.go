package taskmanager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForTerminal(t *testing.T, m *Manager, id string, timeout time.Duration) *Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, ok := m.Get(id)
		require.True(t, ok)
		if task.State.Terminal() {
			return task
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state in time", id)
	return nil
}

func TestSubmit_RunsHandlerAndSucceeds(t *testing.T) {
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		report(50, "halfway")
		return "ok", nil
	}
	m := New(Config{MaxConcurrent: 1}, func(string) (HandlerFunc, bool) { return handler, true }, nil, nil)

	id, err := m.Submit(context.Background(), "evo2_generate_sequence", map[string]any{"prompt": "A"}, "")
	require.NoError(t, err)

	task := waitForTerminal(t, m, id, time.Second)
	assert.Equal(t, StateSucceeded, task.State)
	assert.Equal(t, "ok", task.Result)
	assert.Equal(t, 100, task.Progress)
}

func TestSubmit_UnregisteredHandlerFails(t *testing.T) {
	m := New(Config{MaxConcurrent: 1}, func(string) (HandlerFunc, bool) { return nil, false }, nil, nil)

	id, err := m.Submit(context.Background(), "no_such_tool", nil, "")
	require.NoError(t, err)

	task := waitForTerminal(t, m, id, time.Second)
	assert.Equal(t, StateFailed, task.State)
}

func TestSubmit_CacheHitReturnsSameTaskID(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		calls++
		return "ok", nil
	}
	m := New(Config{MaxConcurrent: 1, CacheEnabled: true}, func(string) (HandlerFunc, bool) { return handler, true }, nil, nil)

	id1, err := m.Submit(context.Background(), "evo2_generate_sequence", map[string]any{"prompt": "A"}, "")
	require.NoError(t, err)
	waitForTerminal(t, m, id1, time.Second)

	id2, err := m.Submit(context.Background(), "evo2_generate_sequence", map[string]any{"prompt": "A"}, "")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, calls)
}

func TestSubmit_RetriesRetryableErrorThenFails(t *testing.T) {
	attempts := 0
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		attempts++
		return nil, broker.New(broker.UpstreamError, "upstream down")
	}
	m := New(Config{MaxConcurrent: 1, MaxRetries: 2}, func(string) (HandlerFunc, bool) { return handler, true }, nil, nil)

	id, err := m.Submit(context.Background(), "search_uniprot", nil, "")
	require.NoError(t, err)

	task := waitForTerminal(t, m, id, 5*time.Second)
	assert.Equal(t, StateFailed, task.State)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestSubmit_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		attempts++
		return nil, broker.New(broker.InvalidArguments, "bad args")
	}
	m := New(Config{MaxConcurrent: 1}, func(string) (HandlerFunc, bool) { return handler, true }, nil, nil)

	id, err := m.Submit(context.Background(), "search_uniprot", nil, "")
	require.NoError(t, err)

	task := waitForTerminal(t, m, id, time.Second)
	assert.Equal(t, StateFailed, task.State)
	assert.Equal(t, 1, attempts)
}

func TestCancel_QueuedTaskIsRemovedImmediately(t *testing.T) {
	block := make(chan struct{})
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		<-block
		return "ok", nil
	}
	m := New(Config{MaxConcurrent: 1}, func(string) (HandlerFunc, bool) { return handler, true }, nil, nil)
	defer close(block)

	runningID, err := m.Submit(context.Background(), "t", nil, "")
	require.NoError(t, err)

	queuedID, err := m.Submit(context.Background(), "t", map[string]any{"x": 1}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := m.Get(runningID)
		return task.State == StateRunning
	}, time.Second, time.Millisecond)

	require.NoError(t, m.Cancel(queuedID))

	task, ok := m.Get(queuedID)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, task.State)
}

func TestCancel_RunningTaskObservesContextAtNextProgressCall(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		close(started)
		for i := 0; i < 100; i++ {
			if !report(i, "working") {
				close(finished)
				return nil, broker.New(broker.Cancelled, "observed cancellation")
			}
			time.Sleep(2 * time.Millisecond)
		}
		return "ok", nil
	}
	m := New(Config{MaxConcurrent: 1}, func(string) (HandlerFunc, bool) { return handler, true }, nil, nil)

	id, err := m.Submit(context.Background(), "t", nil, "")
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Cancel(id))
	<-finished

	task := waitForTerminal(t, m, id, time.Second)
	assert.Equal(t, StateCancelled, task.State)
}

func TestPriorityQueue_HigherPriorityRunsFirst(t *testing.T) {
	var order []string
	done := make(chan struct{}, 2)
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		order = append(order, args["label"].(string))
		done <- struct{}{}
		return "ok", nil
	}

	block := make(chan struct{})
	blocker := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		<-block
		return "ok", nil
	}

	m := New(Config{MaxConcurrent: 1}, func(name string) (HandlerFunc, bool) {
		if name == "blocker" {
			return blocker, true
		}
		return handler, true
	}, nil, nil)

	_, err := m.SubmitWithPriority(context.Background(), "blocker", nil, "", 0)
	require.NoError(t, err)

	_, err = m.SubmitWithPriority(context.Background(), "t", map[string]any{"label": "low"}, "", 1)
	require.NoError(t, err)
	_, err = m.SubmitWithPriority(context.Background(), "t", map[string]any{"label": "high"}, "", 10)
	require.NoError(t, err)

	close(block)
	<-done
	<-done

	assert.Equal(t, []string{"high", "low"}, order)
}

func TestRestore_SeedsCacheFromReplayedTasks(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, args map[string]any, report ProgressFunc) (any, error) {
		calls++
		return "ok", nil
	}
	m := New(Config{MaxConcurrent: 1, CacheEnabled: true}, func(string) (HandlerFunc, bool) { return handler, true }, nil, nil)

	key := cacheKey("search_uniprot", map[string]any{"query": "insulin"})
	m.Restore(map[string]*Task{
		"prior-task": {ID: "prior-task", State: StateSucceeded, CacheKey: key, Result: "cached"},
	})

	id, err := m.Submit(context.Background(), "search_uniprot", map[string]any{"query": "insulin"}, "")
	require.NoError(t, err)
	assert.Equal(t, "prior-task", id)
	assert.Equal(t, 0, calls)
}

func TestLog_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.log")
	log, err := OpenLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(&Task{ID: "a", State: StateSucceeded, CacheKey: "k1"}))
	require.NoError(t, log.Append(&Task{ID: "b", State: StateRunning}))
	require.NoError(t, log.Close())

	replayed, err := Replay(path)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, replayed["a"].State)
	assert.Equal(t, StateFailed, replayed["b"].State)
	assert.Equal(t, "Interrupted", replayed["b"].ErrorKind)
}

func TestReplay_MissingFileReturnsEmpty(t *testing.T) {
	replayed, err := Replay(filepath.Join(t.TempDir(), "does-not-exist.log"))
	require.NoError(t, err)
	assert.Empty(t, replayed)
}
