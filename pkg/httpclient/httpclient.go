// Package httpclient is the shared outbound HTTP client used by every
// network-backed handler family (UniProt, InterPro, PDB/AlphaFold, NCBI,
// EVO2). It centralizes connection pooling, per-host concurrency limits,
// retry-with-backoff, and the mapping of upstream status codes to error
// kinds so individual handler families only need to build a request and
// decode a body.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
)

// DefaultTimeout bounds a single request attempt, matching the default
// deadline for synchronous client-facing calls.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRetries is the number of retries attempted after the first
// try, i.e. up to three total attempts.
const DefaultMaxRetries = 2

// DefaultMaxConnsPerHost caps outstanding connections to any one upstream.
const DefaultMaxConnsPerHost = 4

// backoffBase and backoffJitter implement base*2^attempt ± 20% jitter.
const (
	backoffBase   = 500 * time.Millisecond
	backoffJitter = 0.2
)

// Config tunes a Client. Zero values fall back to the package defaults.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	MaxConnsPerHost int
}

// Client is a retrying HTTP client shared across handler families. A
// single Client is constructed once in Core and passed to every
// network-backed handler family; its underlying Transport pools
// connections per host so families never pay repeated TLS handshakes.
type Client struct {
	http       *http.Client
	maxRetries int
}

// New builds a Client from cfg, applying defaults for zero fields.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = DefaultMaxConnsPerHost
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxConnsPerHost
	transport.MaxIdleConnsPerHost = cfg.MaxConnsPerHost

	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries: cfg.MaxRetries,
	}
}

// Do executes req, retrying on network errors, 5xx responses, and 429
// responses. A 429 honors a delay-seconds Retry-After in place of the
// computed backoff and still counts against MaxRetries. A successful
// response is returned with its body unread; when retries run out on a 5xx
// or 429, the last response is returned with its body already closed,
// together with the error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; ; attempt++ {
		resp, err := c.http.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if err == nil {
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt >= c.maxRetries {
			if resp != nil {
				resp.Body.Close()
			}
			return resp, lastErr
		}

		wait := backoffFor(attempt)
		if err == nil && resp.StatusCode == http.StatusTooManyRequests {
			if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
				wait = ra
			}
		}
		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// backoffFor computes base*2^attempt with ±20% jitter, attempt 0-indexed.
func backoffFor(attempt int) time.Duration {
	base := float64(backoffBase) * math.Pow(2, float64(attempt))
	jitter := base * backoffJitter * (2*rand.Float64() - 1) // #nosec G404 -- jitter, not a security value
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// retryAfter parses a Retry-After header given as delay-seconds. HTTP-date
// form is not handled by upstreams in this domain and is ignored.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ClassifyStatus maps an upstream HTTP status code to a broker.Kind so
// handler families don't each reimplement the same judgment call.
func ClassifyStatus(status int) broker.Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return broker.UpstreamRateLimited
	case status >= 500:
		return broker.UpstreamError
	case status >= 400:
		return broker.InvalidArguments
	default:
		return broker.Internal
	}
}

// ReadBody fully drains and closes resp.Body, returning its bytes. Callers
// that need the body after Do has finished retrying should use this
// rather than reading resp.Body directly more than once.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// HostSemaphores guards per-host concurrency beyond what the transport's
// MaxConnsPerHost already enforces at the socket level; handler families
// that issue several logical requests per tool call (e.g. InterPro's
// submit-then-poll) use Acquire/Release to stay within the same budget.
type HostSemaphores struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

// NewHostSemaphores builds a per-host limiter sized to limit concurrent
// in-flight requests per hostname.
func NewHostSemaphores(limit int) *HostSemaphores {
	if limit <= 0 {
		limit = DefaultMaxConnsPerHost
	}
	return &HostSemaphores{sems: make(map[string]chan struct{}), limit: limit}
}

func (h *HostSemaphores) sem(host string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sems[host]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[host] = s
	}
	return s
}

// Acquire blocks until a slot for host is available or ctx is cancelled.
func (h *HostSemaphores) Acquire(ctx context.Context, host string) error {
	select {
	case h.sem(host) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired for host.
func (h *HostSemaphores) Release(host string) {
	select {
	case <-h.sem(host):
	default:
	}
}
