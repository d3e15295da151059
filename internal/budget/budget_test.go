package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

func TestTrackerTwoUnitScenario(t *testing.T) {
	t.Parallel()

	costs := leads.ProviderUnitCost{"hunter.domain_search": leads.USD(1)}
	tr := New(leads.USD(2), costs, zap.NewNop())

	calls := 0
	for i := 0; i < 5; i++ {
		if _, ok := tr.TrySpend("hunter.domain_search"); !ok {
			break
		}
		calls++
	}
	require.Equal(t, 2, calls)
	require.Zero(t, tr.Remaining())
	require.Equal(t, leads.USD(2), tr.Spent())
}

func TestTrackerCanSpendIsPure(t *testing.T) {
	t.Parallel()

	tr := New(leads.USD(1), nil, zap.NewNop())
	require.True(t, tr.CanSpend(leads.USD(1)))
	require.True(t, tr.CanSpend(leads.USD(1)))
	require.Zero(t, tr.Spent())
	require.False(t, tr.CanSpend(leads.USD(1.01)))
}

func TestTrackerSpendRefusesOvershoot(t *testing.T) {
	t.Parallel()

	tr := New(leads.USD(0.05), nil, zap.NewNop())
	require.NoError(t, tr.Spend(leads.USD(0.03)))
	err := tr.Spend(leads.USD(0.03))
	require.ErrorIs(t, err, leads.ErrBudgetExhausted)
	require.Equal(t, leads.USD(0.03), tr.Spent())
	require.Equal(t, leads.USD(0.02), tr.Remaining())
	require.Error(t, tr.Spend(-1))
}

func TestTrackerUnknownOperationIsFree(t *testing.T) {
	t.Parallel()

	tr := New(0, leads.ProviderUnitCost{}, zap.NewNop())
	require.Zero(t, tr.Cost("mystery.op"))
	cost, ok := tr.TrySpend("mystery.op")
	require.True(t, ok)
	require.Zero(t, cost)
	require.Zero(t, tr.Spent())
}

func TestTrackerConcurrentSpendNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	costs := leads.ProviderUnitCost{"apollo.people_search": leads.USD(0.03)}
	tr := New(leads.USD(1), costs, zap.NewNop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tr.TrySpend("apollo.people_search"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
			require.LessOrEqual(t, tr.Spent(), tr.Limit())
		}()
	}
	wg.Wait()
	require.Equal(t, 33, granted)
	require.Equal(t, leads.USD(0.99), tr.Spent())
}
