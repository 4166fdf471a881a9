// Package health runs periodic liveness checks against every
// network-backed handler family and exposes their current status for
// GET /health.
//
// Families register a Pingable (and, where the upstream supports it, a
// Reconnectable) at startup. A family with no API key configured never
// registers a Pingable at all; it is recorded once as not_configured and
// the Monitor leaves it alone from then on, matching the policy that a
// missing credential is a deployment fact, not a transient fault to keep
// re-probing.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/genobridge/genobridge/pkg/logging"
)

// Pingable is a cheap upstream reachability probe. Handler families that
// front an external API implement it against whatever endpoint is
// lightest weight (often the same one used for request signing or auth
// validation).
type Pingable interface {
	Ping(ctx context.Context) error
}

// Reconnectable is implemented by families that hold a stateful upstream
// connection (as opposed to a bare *http.Client) and can retry it
// explicitly after a failed ping.
type Reconnectable interface {
	Reconnect(ctx context.Context) error
}

// Status is the liveness state of one handler family.
type Status string

const (
	StatusOK           Status = "ok"
	StatusDegraded     Status = "degraded"
	StatusNotConfigured Status = "not_configured"
)

// Record is the per-family liveness entry surfaced on GET /health.
type Record struct {
	Family      string    `json:"family"`
	Status      Status    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	LastError   string    `json:"last_error,omitempty"`
}

// DefaultInterval is how often the Monitor polls every registered family.
const DefaultInterval = 60 * time.Second

type entry struct {
	pingable      Pingable
	reconnectable Reconnectable
	record        Record
}

// Monitor owns the liveness record for every registered handler family.
type Monitor struct {
	logger *slog.Logger

	mu       sync.Mutex // guards registration order only; families is append-only after startup
	families []string

	recordsMu sync.RWMutex
	records   map[string]*entry
}

// New constructs a Monitor. A nil logger discards all output.
func New(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Monitor{logger: logger, records: make(map[string]*entry)}
}

// Register adds a network-backed family with a reachability probe.
// reconnectable may be nil for families that have nothing to reconnect.
func (m *Monitor) Register(family string, pingable Pingable, reconnectable Reconnectable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.families = append(m.families, family)

	m.recordsMu.Lock()
	defer m.recordsMu.Unlock()
	m.records[family] = &entry{
		pingable:      pingable,
		reconnectable: reconnectable,
		record:        Record{Family: family, Status: StatusDegraded},
	}
}

// RegisterNotConfigured records a family that has no usable credentials.
// It is recorded once and never polled.
func (m *Monitor) RegisterNotConfigured(family string) {
	m.mu.Lock()
	m.families = append(m.families, family)
	m.mu.Unlock()

	m.recordsMu.Lock()
	defer m.recordsMu.Unlock()
	m.records[family] = &entry{
		record: Record{Family: family, Status: StatusNotConfigured, LastChecked: time.Now()},
	}
}

// Start runs checkAll on a ticker until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAll(ctx)
			}
		}
	}()
}

// checkAll pings every registered, configured family and updates its
// Record. A family whose ping fails and which implements Reconnectable
// gets one reconnect attempt in the same pass.
func (m *Monitor) checkAll(ctx context.Context) {
	m.mu.Lock()
	families := append([]string(nil), m.families...)
	m.mu.Unlock()

	for _, name := range families {
		m.recordsMu.RLock()
		e := m.records[name]
		m.recordsMu.RUnlock()
		if e == nil || e.pingable == nil {
			continue
		}

		now := time.Now()
		err := e.pingable.Ping(ctx)

		m.recordsMu.Lock()
		prev := e.record
		if err == nil {
			e.record = Record{Family: name, Status: StatusOK, LastChecked: now}
			if prev.Status != StatusOK {
				m.logger.Info("handler family recovered", "family", name)
			}
		} else {
			e.record = Record{Family: name, Status: StatusDegraded, LastChecked: now, LastError: err.Error()}
			if prev.Status == StatusOK {
				m.logger.Warn("handler family degraded", "family", name, "error", err)
			}
		}
		reconnectable := e.reconnectable
		m.recordsMu.Unlock()

		if err != nil && reconnectable != nil {
			m.logger.Info("attempting reconnect", "family", name)
			if rerr := reconnectable.Reconnect(ctx); rerr != nil {
				m.logger.Warn("reconnect failed", "family", name, "error", rerr)
				continue
			}
			m.recordsMu.Lock()
			e.record = Record{Family: name, Status: StatusOK, LastChecked: time.Now()}
			m.recordsMu.Unlock()
			m.logger.Info("handler family reconnected", "family", name)
		}
	}
}

// Records returns a snapshot of every registered family's current Record,
// ordered by registration order.
func (m *Monitor) Records() []Record {
	m.mu.Lock()
	families := append([]string(nil), m.families...)
	m.mu.Unlock()

	m.recordsMu.RLock()
	defer m.recordsMu.RUnlock()
	out := make([]Record, 0, len(families))
	for _, name := range families {
		if e := m.records[name]; e != nil {
			out = append(out, e.record)
		}
	}
	return out
}

// Record returns the current liveness entry for one family, or false if
// no family by that name has been registered.
func (m *Monitor) Record(family string) (Record, bool) {
	m.recordsMu.RLock()
	defer m.recordsMu.RUnlock()
	e, ok := m.records[family]
	if !ok {
		return Record{}, false
	}
	return e.record, true
}
