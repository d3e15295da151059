package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostGate serializes requests to one host and spaces them by the host's
// current delay, measured from the start of the previous request.
type hostGate struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	delay     time.Duration
	lastStart time.Time
	prevStart time.Time
}

// hostGates hands out one gate per host.
type hostGates struct {
	mu    sync.Mutex
	gates map[string]*hostGate
}

func newHostGates() *hostGates {
	return &hostGates{gates: make(map[string]*hostGate)}
}

// acquire locks the host's gate; callers must call release on the result.
func (g *hostGates) acquire(host string) *hostGate {
	key := strings.ToLower(host)
	g.mu.Lock()
	gate, ok := g.gates[key]
	if !ok {
		gate = &hostGate{}
		g.gates[key] = gate
	}
	g.mu.Unlock()
	gate.mu.Lock()
	return gate
}

func (h *hostGate) release() {
	h.mu.Unlock()
}

// reserve books the next request slot at now and returns how long the caller
// must wait before sending. Every request is recorded, so a change of delay
// is measured from the previous start rather than from a refilled limiter.
// The caller must hold the gate.
func (h *hostGate) reserve(now time.Time, delay time.Duration) (*rate.Reservation, time.Duration) {
	h.prevStart = h.lastStart
	if delay <= 0 {
		h.limiter, h.delay = nil, 0
		h.lastStart = now
		return nil, 0
	}
	if h.limiter == nil || delay != h.delay {
		h.limiter = rate.NewLimiter(rate.Every(delay), 1)
		h.delay = delay
		if !h.lastStart.IsZero() {
			h.limiter.ReserveN(h.lastStart, 1)
		}
	}
	r := h.limiter.ReserveN(now, 1)
	if !r.OK() {
		h.lastStart = now
		return nil, 0
	}
	wait := r.DelayFrom(now)
	h.lastStart = now.Add(wait)
	return r, wait
}

// cancel gives back a slot that was reserved but never used.
func (h *hostGate) cancel(r *rate.Reservation, now time.Time) {
	if r != nil {
		r.CancelAt(now)
	}
	h.lastStart = h.prevStart
}

// Sleeper pauses the caller. The system clock implements it with a timer.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
