// Package health serves liveness and readiness checks.
//
// Every check runs on its own ticker. A check turns unhealthy after three
// consecutive failures and healthy again after one success, so a single slow
// database ping does not pull the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

const (
	failureThreshold = 3
	successThreshold = 1
)

type checker struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Only touched by the checker's own goroutine.
	fails, oks int
}

func newChecker(name string, timeout time.Duration, check CheckFunc) *checker {
	p := &checker{name: name, timeout: timeout, check: check}
	p.healthy.Store(true)
	return p
}

func (p *checker) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= failureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= successThreshold {
		p.healthy.Store(true)
	}
}

func (p *checker) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error(), true
	}
	return "check is unhealthy", true
}

func (p *checker) loop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.run(ctx)
		}
	}
}

// Health owns the liveness and readiness checks of the service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*checker
	readiness []*checker
	cancel    context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that reports whether the process works.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newChecker(name, timeout, check))
}

// AddReadinessCheck registers a check that gates traffic, such as the
// database ping.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newChecker(name, timeout, check))
}

// Start runs every registered check each interval until Stop or ctx ends.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append(append([]*checker{}, h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range checks {
		go p.loop(ctx, interval)
	}
}

// Stop cancels the check goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness flag. The server sets it to false
// before draining connections on shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness flag combined with the readiness checks.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(failures(h.snapshot(false))) == 0
}

func (h *Health) snapshot(live bool) []*checker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if live {
		return append([]*checker{}, h.liveness...)
	}
	return append([]*checker{}, h.readiness...)
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, failures(h.snapshot(true)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	f := failures(h.snapshot(false))
	if !h.ready.Load() {
		f["_readiness"] = "service is not ready"
	}
	write(w, f)
}

func failures(checks []*checker) map[string]string {
	out := make(map[string]string)
	for _, p := range checks {
		if msg, failed := p.failure(); failed {
			out[p.name] = msg
		}
	}
	return out
}

// write renders {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func write(w http.ResponseWriter, failed map[string]string) {
	status, label := http.StatusOK, "ok"
	if len(failed) > 0 {
		status, label = http.StatusServiceUnavailable, "unhealthy"
	}
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(label) })
		if len(names) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
				}
			})
		})
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
