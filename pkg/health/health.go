// Package health serves liveness and readiness probes.
//
// Every probe runs in its own goroutine. A probe flips to unhealthy after
// FailureThreshold consecutive failures and back after SuccessThreshold
// consecutive passes, so a single slow ping does not take the pod out of
// rotation.
package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// ProbeOption tunes a probe.
type ProbeOption func(*probe)

// WithTimeout bounds a single check run. Default 2s.
func WithTimeout(d time.Duration) ProbeOption {
	return func(p *probe) { p.timeout = d }
}

// WithThresholds sets the consecutive failure and success counts needed to
// change state. Defaults 3 and 1.
func WithThresholds(failures, successes int) ProbeOption {
	return func(p *probe) {
		p.failureThreshold = max(failures, 1)
		p.successThreshold = max(successes, 1)
	}
}

// probe state is written only by its runner goroutine; healthy and lastErr
// are read concurrently by the HTTP endpoints.
type probe struct {
	name             string
	check            CheckFunc
	timeout          time.Duration
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	fails  int
	passes int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.passes = 0
		p.fails++
		if p.fails >= p.failureThreshold {
			p.healthy.Store(false)
		}
		return
	}

	p.lastErr.Store(nil)
	p.fails = 0
	p.passes++
	if p.passes >= p.successThreshold {
		p.healthy.Store(true)
	}
}

// failure returns the reason the probe is unhealthy, or "" if it is healthy.
func (p *probe) failure() string {
	if p.healthy.Load() {
		return ""
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is unhealthy"
}

// Health aggregates probes and the manual readiness gate.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes map[Kind][]*probe
	cancel context.CancelFunc
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{probes: make(map[Kind][]*probe)}
}

// Register adds a probe. Probes start healthy. Register before Start.
func (h *Health) Register(kind Kind, name string, check CheckFunc, opts ...ProbeOption) {
	p := &probe{
		name:             name,
		check:            check,
		timeout:          2 * time.Second,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(p)
	}
	p.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[kind] = append(h.probes[kind], p)
}

// Start runs every registered probe at interval until ctx is done or Stop is
// called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	var all []*probe
	for _, ps := range h.probes {
		all = append(all, ps...)
	}
	h.mu.Unlock()

	for _, p := range all {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady opens or closes the readiness gate. Closed during shutdown so the
// load balancer drains the instance before the server stops.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	ps := slices.Clone(h.probes[kind])
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range ps {
		if msg := p.failure(); msg != "" {
			out[p.name] = msg
		}
	}
	return out
}

// Livez serves the liveness endpoint.
func (h *Health) Livez(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// Readyz serves the readiness endpoint.
func (h *Health) Readyz(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_gate"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus renders {"status":"ok"} or
// {"status":"unhealthy","checks":{name:reason}} with 503.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range slices.Sorted(maps.Keys(failures)) {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.Write(e.Bytes())
}
