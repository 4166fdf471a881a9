// Package taskmanager runs long-running tool calls on a bounded worker
// pool behind a priority queue, with progress reporting, cancellation,
// retries, a content-addressed result cache and a replayable persistence
// log.
package taskmanager

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/tracing"
	"github.com/google/uuid"
)

// Config controls scheduling and retry behaviour. Zero values are
// replaced with the defaults from §4.7.
type Config struct {
	MaxConcurrent      int
	MaxRetries         int
	DefaultTimeout     time.Duration
	CacheEnabled       bool
	PersistenceEnabled bool
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 3
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 300 * time.Second
	}
	return c
}

type running struct {
	task   *Task
	cancel context.CancelFunc
}

// Manager is the Task Manager (component G). The single logical owner of
// the queue, the running set and the cache is the goroutine running
// Manager's own methods under mu; there is no actor loop, just a mutex,
// matching the "implementations may use a mutex or an actor" note in §5.
type Manager struct {
	cfg     Config
	log     *slog.Logger
	handler func(toolName string) (HandlerFunc, bool)
	persist *Log

	mu       sync.Mutex
	tasks    map[string]*Task
	queue    priorityQueue
	runSet   map[string]*running
	cache    map[string]*Task
	seq      int64
	wake     chan struct{}
	closed   bool
}

// New builds a Manager. handlerLookup resolves a tool name to its
// long-running HandlerFunc; it is consulted once per task execution so
// handler registration can happen after the Manager is constructed.
func New(cfg Config, handlerLookup func(toolName string) (HandlerFunc, bool), persist *Log, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		cfg:     cfg.withDefaults(),
		log:     log,
		handler: handlerLookup,
		persist: persist,
		tasks:   make(map[string]*Task),
		runSet:  make(map[string]*running),
		cache:   make(map[string]*Task),
		wake:    make(chan struct{}, 1),
	}
	for i := 0; i < m.cfg.MaxConcurrent; i++ {
		go m.schedulerLoop()
	}
	return m
}

// Restore seeds the cache from a replayed task log, per §4.7's restart
// contract. Only succeeded tasks are eligible for cache reuse; anything
// else replay already rewrote to failed(Interrupted).
func (m *Manager) Restore(tasks map[string]*Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		m.tasks[t.ID] = t
		if t.State == StateSucceeded && t.CacheKey != "" {
			m.cache[t.CacheKey] = t
		}
	}
}

// Submit implements dispatcher.TaskSubmitter: compute the cache key, return
// a cached result immediately on hit, else enqueue.
func (m *Manager) Submit(ctx context.Context, toolName string, args map[string]any, origin string) (string, error) {
	return m.SubmitWithPriority(ctx, toolName, args, origin, 0)
}

// SubmitWithPriority is Submit plus an explicit queue priority (higher
// runs first).
func (m *Manager) SubmitWithPriority(_ context.Context, toolName string, args map[string]any, origin string, priority int) (string, error) {
	key := cacheKey(toolName, args)

	m.mu.Lock()
	if m.cfg.CacheEnabled {
		if cached, ok := m.cache[key]; ok {
			m.mu.Unlock()
			return cached.ID, nil
		}
	}

	id := uuid.NewString()
	now := time.Now()
	task := &Task{
		ID: id, ToolName: toolName, Args: args, Origin: origin,
		Priority: priority, State: StateQueued, CacheKey: key,
		CreatedAt: now, UpdatedAt: now,
	}
	m.tasks[id] = task
	m.seq++
	heap.Push(&m.queue, &queueItem{task: task, seq: m.seq})
	m.mu.Unlock()

	m.persistSnapshot(task)
	m.signal()
	return id, nil
}

// Close stops accepting new scheduling work. In-flight tasks are not
// interrupted; callers that want that should Cancel them first.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Get returns a snapshot of a task's current state.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Cancel moves a queued task straight to cancelled, or signals a running
// task's context so its next progress report observes cancellation.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runSet[id]; ok {
		r.cancel()
		return nil
	}

	for i, item := range m.queue {
		if item.task.ID == id {
			heap.Remove(&m.queue, i)
			item.task.State = StateCancelled
			item.task.UpdatedAt = time.Now()
			m.persistSnapshot(item.task)
			return nil
		}
	}

	t, ok := m.tasks[id]
	if !ok {
		return broker.New(broker.ToolNotFound, "no task %q", id)
	}
	if t.State.Terminal() {
		return broker.New(broker.Internal, "task %q already terminal", id)
	}
	return nil
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) schedulerLoop() {
	for range m.wake {
		for {
			task, ctx, cancel, ok := m.claimNext()
			if !ok {
				break
			}
			m.runTask(task, ctx, cancel)
		}
	}
}

func (m *Manager) claimNext() (*Task, context.Context, context.CancelFunc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || len(m.runSet) >= m.cfg.MaxConcurrent || m.queue.Len() == 0 {
		return nil, nil, nil, false
	}

	item := heap.Pop(&m.queue).(*queueItem)
	task := item.task
	task.State = StateRunning
	task.UpdatedAt = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DefaultTimeout)
	m.runSet[task.ID] = &running{task: task, cancel: cancel}
	m.persistSnapshot(task)

	// re-signal in case more capacity remains for the next iteration
	select {
	case m.wake <- struct{}{}:
	default:
	}

	return task, ctx, cancel, true
}

func (m *Manager) runTask(task *Task, ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	ctx, span := tracing.StartTaskRun(ctx, task.ToolName, task.ID)
	var err error
	defer func() { tracing.End(span, err) }()

	handler, ok := m.handler(task.ToolName)
	if !ok {
		err = broker.New(broker.Internal, "no task handler registered for %q", task.ToolName)
		m.finish(task, ctx, nil, err)
		return
	}

	report := func(pct int, message string) bool {
		m.mu.Lock()
		if pct > task.Progress {
			task.Progress = pct
		}
		task.Message = message
		task.UpdatedAt = time.Now()
		cancelled := ctx.Err() != nil
		m.mu.Unlock()
		return !cancelled
	}

	var result any
	result, err = handler(ctx, task.Args, report)
	m.finish(task, ctx, result, err)
}

func (m *Manager) finish(task *Task, ctx context.Context, result any, err error) {
	m.mu.Lock()
	delete(m.runSet, task.ID)
	task.UpdatedAt = time.Now()

	switch {
	case err == nil:
		task.State = StateSucceeded
		task.Result = result
		task.Progress = 100
		if m.cfg.CacheEnabled {
			m.cache[task.CacheKey] = task
		}
	case ctx.Err() == context.Canceled:
		task.State = StateCancelled
	case ctx.Err() == context.DeadlineExceeded:
		task.State = StateTimedOut
		task.ErrorKind = string(broker.TimedOut)
		task.ErrorMsg = "task exceeded its deadline"
	default:
		task.Attempts++
		kind := broker.KindOf(err)
		if kind.Retryable() && task.Attempts < m.cfg.MaxRetries {
			task.State = StateQueued
			task.ErrorKind = string(kind)
			task.ErrorMsg = err.Error()
			m.seq++
			heap.Push(&m.queue, &queueItem{task: task, seq: m.seq})
			m.persistSnapshot(task)
			m.mu.Unlock()
			m.backoff(task.Attempts)
			m.signal()
			return
		}
		task.State = StateFailed
		task.ErrorKind = string(kind)
		task.ErrorMsg = err.Error()
	}

	m.persistSnapshot(task)
	m.mu.Unlock()
}

func (m *Manager) backoff(attempt int) {
	base := 500 * time.Millisecond
	delay := base * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Int63n(int64(delay) / 5))
	time.Sleep(delay + jitter)
}

// persistSnapshot appends t to the task log. Callers normally hold m.mu,
// which is fine: the log has no dependency on that lock, it only needs its
// own writes serialized, which os.File.Write already guarantees for a
// single *os.File used from one goroutine at a time.
func (m *Manager) persistSnapshot(t *Task) {
	if m.persist == nil {
		return
	}
	if err := m.persist.Append(t); err != nil {
		m.log.Warn("persisting task snapshot", "task", t.ID, "error", err)
	}
}

// cacheKey canonicalizes args (sorted keys) before hashing so argument
// ordering never affects cache hits.
func cacheKey(toolName string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canonical := make(map[string]any, len(args))
	for _, k := range keys {
		canonical[k] = args[k]
	}

	data, _ := json.Marshal(struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	}{toolName, canonical})

	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", toolName, hex.EncodeToString(sum[:])[:16])
}
