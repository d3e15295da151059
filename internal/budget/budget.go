// Package budget enforces the spend ceiling of one enrichment run.
package budget

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
)

// defaultWarnRatio is the fraction of the limit at which a warning is logged.
const defaultWarnRatio = 0.8

// Tracker records spend against a fixed limit. The spent amount only grows
// and never exceeds the limit. All methods are safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	limit     leads.Money
	spent     leads.Money
	costs     leads.ProviderUnitCost
	unknown   map[string]struct{}
	warned    bool
	warnRatio float64
	logger    *zap.Logger
}

// New builds a Tracker. costs is read-only after construction.
func New(limit leads.Money, costs leads.ProviderUnitCost, logger *zap.Logger) *Tracker {
	if limit < 0 {
		limit = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		limit:     limit,
		costs:     costs,
		unknown:   make(map[string]struct{}),
		warnRatio: defaultWarnRatio,
		logger:    logger.Named("budget"),
	}
}

// Cost returns the unit price of op. Unknown operations cost nothing; the
// gap is logged once per operation.
func (t *Tracker) Cost(op string) leads.Money {
	if cost, ok := t.costs[op]; ok {
		return cost
	}
	t.mu.Lock()
	_, seen := t.unknown[op]
	t.unknown[op] = struct{}{}
	t.mu.Unlock()
	if !seen {
		t.logger.Warn("no unit cost configured; treating operation as free", zap.String("operation", op))
	}
	return 0
}

// CanSpend reports whether cost fits in the remaining budget. It has no side effects.
func (t *Tracker) CanSpend(cost leads.Money) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canSpendLocked(cost)
}

// Spend records cost. It refuses with ErrBudgetExhausted rather than exceed the limit.
func (t *Tracker) Spend(cost leads.Money) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.canSpendLocked(cost) {
		return fmt.Errorf("spend %s with %s remaining: %w", cost, t.limit-t.spent, leads.ErrBudgetExhausted)
	}
	t.spendLocked(cost)
	return nil
}

// TrySpend checks and records the cost of op in one step, so concurrent
// domain tasks cannot both pass the check and overshoot the limit.
func (t *Tracker) TrySpend(op string) (leads.Money, bool) {
	cost := t.Cost(op)
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.canSpendLocked(cost) {
		return cost, false
	}
	t.spendLocked(cost)
	metrics.ObserveSpend(op, int64(cost))
	return cost, true
}

// Remaining returns limit minus spent.
func (t *Tracker) Remaining() leads.Money {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit - t.spent
}

// Spent returns the amount recorded so far.
func (t *Tracker) Spent() leads.Money {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Limit returns the ceiling.
func (t *Tracker) Limit() leads.Money {
	return t.limit
}

func (t *Tracker) canSpendLocked(cost leads.Money) bool {
	if cost < 0 {
		return false
	}
	return t.spent+cost <= t.limit
}

func (t *Tracker) spendLocked(cost leads.Money) {
	t.spent += cost
	if t.warned || t.limit == 0 {
		return
	}
	if float64(t.spent)/float64(t.limit) >= t.warnRatio {
		t.warned = true
		t.logger.Warn("budget nearly exhausted",
			zap.Stringer("spent", t.spent),
			zap.Stringer("limit", t.limit),
		)
	}
}
