package agent

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/lead-enrichment/internal/budget"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/provider"
)

// RunInput is one provider sweep over a list of domains.
type RunInput struct {
	Domains []string
	// TitleHint and Locations narrow provider queries; they are not the final filter.
	TitleHint    []string
	Locations    []string
	Executive    bool
	PerDomainCap int
	Providers    []provider.Client
	Budget       *budget.Tracker
}

// DomainResult holds what one domain produced.
type DomainResult struct {
	Domain     string
	Candidates []leads.RawContactCandidate
}

// RunOutput is the outcome of Run. Results follow input domain order and
// only include domains that were actually searched.
type RunOutput struct {
	Results       []DomainResult
	ProviderCalls map[string]int
	StopReason    leads.StopReason
}

// Candidates flattens the results in domain order.
func (o RunOutput) Candidates() []leads.RawContactCandidate {
	var out []leads.RawContactCandidate
	for _, r := range o.Results {
		out = append(out, r.Candidates...)
	}
	return out
}

type runState struct {
	mu         sync.Mutex
	results    []*DomainResult
	calls      map[string]int
	zeroStreak int
	stop       leads.StopReason
	cancel     context.CancelFunc
}

func (s *runState) halt(reason leads.StopReason) {
	if s.stop == "" {
		s.stop = reason
	}
	s.cancel()
}

// Run queries providers for every domain under the run's budget. It never
// fails: budget exhaustion, a zero-yield streak or cancellation end the run
// early and whatever was gathered is returned.
func (a *Agent) Run(ctx context.Context, in RunInput) RunOutput {
	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.Int("domains", len(in.Domains)),
		attribute.Int("providers", len(in.Providers)),
	))
	defer span.End()

	out := RunOutput{ProviderCalls: map[string]int{}}
	if !anyEnabled(in.Providers) {
		a.logger.Warn("no enabled providers; nothing to do")
		out.StopReason = leads.StopNoProviders
		return out
	}
	perDomainCap := in.PerDomainCap
	if perDomainCap <= 0 {
		perDomainCap = a.cfg.MaxEmailsPerDomain
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	state := &runState{
		results: make([]*DomainResult, len(in.Domains)),
		calls:   out.ProviderCalls,
		cancel:  cancel,
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(a.cfg.Parallelism)
	for i, domain := range in.Domains {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			candidates, exhausted := a.searchDomain(gctx, domain, in, perDomainCap, state)

			state.mu.Lock()
			defer state.mu.Unlock()
			if exhausted {
				a.logger.Info("budget exhausted; ending run early",
					zap.String("domain", domain),
					zap.Stringer("remaining", in.Budget.Remaining()),
				)
				state.halt(leads.StopBudgetExhausted)
				return nil
			}
			state.results[i] = &DomainResult{Domain: domain, Candidates: candidates}
			if gctx.Err() != nil {
				return nil
			}
			if len(candidates) > 0 {
				state.zeroStreak = 0
				return nil
			}
			state.zeroStreak++
			if threshold := a.cfg.ZeroYieldThreshold; threshold > 0 && state.zeroStreak >= threshold {
				a.logger.Warn("consecutive domains returned nothing; providers look throttled",
					zap.Int("streak", state.zeroStreak),
					zap.String("domain", domain),
				)
				state.halt(leads.StopZeroYieldStreak)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range state.results {
		if r != nil {
			out.Results = append(out.Results, *r)
		}
	}
	switch {
	case state.stop != "":
		out.StopReason = state.stop
	case ctx.Err() != nil:
		out.StopReason = leads.StopCanceled
	default:
		out.StopReason = leads.StopCompleted
	}
	span.SetAttributes(attribute.String("stop_reason", string(out.StopReason)))
	return out
}

// searchDomain walks the providers in order. Later providers are only asked
// while the domain has produced nothing. exhausted reports a refused spend.
func (a *Agent) searchDomain(ctx context.Context, domain string, in RunInput, perDomainCap int, state *runState) ([]leads.RawContactCandidate, bool) {
	ctx, span := a.tracer.Start(ctx, "agent.domain", trace.WithAttributes(attribute.String("domain", domain)))
	defer span.End()

	var collected []leads.RawContactCandidate
	seen := map[string]bool{}
	for _, p := range in.Providers {
		if len(collected) > 0 || ctx.Err() != nil {
			break
		}
		if p == nil || !p.Enabled() {
			continue
		}
		if _, ok := in.Budget.TrySpend(p.Operation()); !ok {
			span.SetAttributes(attribute.Bool("budget_exhausted", true))
			return collected, true
		}
		state.mu.Lock()
		state.calls[p.Name()]++
		state.mu.Unlock()

		found := p.Search(ctx, provider.Query{
			Domain:    domain,
			Titles:    in.TitleHint,
			Locations: in.Locations,
			Executive: in.Executive,
			Limit:     perDomainCap,
		})
		for _, c := range found {
			key := leads.EmailKey(c.Email)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if c.Domain == "" {
				c.Domain = domain
			}
			collected = append(collected, c)
			if len(collected) >= perDomainCap {
				break
			}
		}
		a.logger.Debug("provider searched",
			zap.String("provider", p.Name()),
			zap.String("domain", domain),
			zap.Int("candidates", len(found)),
		)
	}
	span.SetAttributes(attribute.Int("candidates", len(collected)))
	return collected, false
}

func anyEnabled(clients []provider.Client) bool {
	for _, c := range clients {
		if c != nil && c.Enabled() {
			return true
		}
	}
	return false
}
