package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

// RunStore keeps finished runs in memory for development and tests.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]leads.RunResult
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]leads.RunResult)}
}

// SaveRun stores run, replacing any earlier copy with the same ID.
func (s *RunStore) SaveRun(_ context.Context, run leads.RunResult) error {
	if run.ID == "" {
		return fmt.Errorf("save run: id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun returns a copy of the stored run.
func (s *RunStore) GetRun(_ context.Context, runID string) (leads.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return leads.RunResult{}, fmt.Errorf("get run %s: %w", runID, leads.ErrRunNotFound)
	}
	return cloneRun(run), nil
}

// IDs lists stored run IDs in lexical order.
func (s *RunStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.runs))
	for id := range s.runs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneRun(run leads.RunResult) leads.RunResult {
	run.Domains = append([]string(nil), run.Domains...)
	run.Leads = append([]leads.LeadRecord(nil), run.Leads...)
	return run
}
