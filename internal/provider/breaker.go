package provider

import (
	"sync"

	"github.com/JakeFAU/lead-enrichment/internal/metrics"
)

// CircuitBreaker disables a provider once it reports a definitive plan or
// authorization failure. It stays open for the life of the process unless
// Reset is called.
type CircuitBreaker struct {
	name   string
	mu     sync.RWMutex
	open   bool
	reason string
}

// NewCircuitBreaker returns a closed breaker for the named provider.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{name: name}
}

// Trip opens the breaker. It reports whether this call changed the state.
func (b *CircuitBreaker) Trip(reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return false
	}
	b.open = true
	b.reason = reason
	metrics.ObserveCircuitTrip(b.name)
	return true
}

// Open reports whether calls should be short-circuited.
func (b *CircuitBreaker) Open() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.open
}

// Reason returns why the breaker tripped, or "".
func (b *CircuitBreaker) Reason() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reason
}

// Reset closes the breaker.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.reason = ""
}
