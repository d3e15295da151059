// Package enrichment runs best-effort secondary passes over accepted leads.
// Passes only fill fields that are still empty and never fail a run.
package enrichment

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

// DefaultMaxDomains caps how many distinct domains one pass touches.
const DefaultMaxDomains = 5

// Patch is what a pass learned about one domain.
type Patch struct {
	PhoneNumber  string
	CareersLinks []string
	SocialLinks  map[string]string
	Jobs         []leads.JobPosting
	News         []leads.NewsItem
}

// Empty reports whether the patch carries nothing.
func (p Patch) Empty() bool {
	return p.PhoneNumber == "" && len(p.CareersLinks) == 0 && len(p.SocialLinks) == 0 &&
		len(p.Jobs) == 0 && len(p.News) == 0
}

// Pass performs one round trip per domain.
type Pass interface {
	Name() string
	// Operation is the cost key billed per domain, or "" when the pass is free.
	Operation() string
	Enabled() bool
	Run(ctx context.Context, domain string) (Patch, error)
}

// Spender reserves budget before a priced round trip.
type Spender interface {
	TrySpend(op string) (leads.Money, bool)
}

// Fetcher is the transport passes call through.
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error)
}

// Runner applies passes to a lead set.
type Runner struct {
	maxDomains int
	budget     Spender
	logger     *zap.Logger
}

// NewRunner builds a Runner. maxDomains <= 0 uses DefaultMaxDomains; a nil
// budget leaves every pass unmetered.
func NewRunner(maxDomains int, budget Spender, logger *zap.Logger) *Runner {
	if maxDomains <= 0 {
		maxDomains = DefaultMaxDomains
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{maxDomains: maxDomains, budget: budget, logger: logger.Named("enrichment")}
}

// Apply runs every enabled pass over the first maxDomains distinct domains of
// in and returns a patched copy. Per-domain failures are logged and skipped.
func (r *Runner) Apply(ctx context.Context, in []leads.LeadRecord, passes ...Pass) []leads.LeadRecord {
	out := append([]leads.LeadRecord(nil), in...)
	domains := distinctDomains(out, r.maxDomains)
	if len(domains) == 0 {
		return out
	}

	for _, pass := range passes {
		if pass == nil || !pass.Enabled() {
			continue
		}
		for _, domain := range domains {
			if ctx.Err() != nil {
				return out
			}
			if !r.reserve(pass) {
				r.logger.Info("budget exhausted; stopping pass",
					zap.String("pass", pass.Name()),
					zap.String("domain", domain),
				)
				break
			}
			patch, err := pass.Run(ctx, domain)
			if err != nil {
				r.logger.Warn("enrichment pass failed",
					zap.String("pass", pass.Name()),
					zap.String("domain", domain),
					zap.Int("status_code", leads.StatusOf(err)),
					zap.Error(err),
				)
				continue
			}
			if patch.Empty() {
				continue
			}
			for i := range out {
				if out[i].Domain == domain {
					merge(&out[i], patch)
				}
			}
		}
	}
	return out
}

func (r *Runner) reserve(pass Pass) bool {
	if r.budget == nil || pass.Operation() == "" {
		return true
	}
	_, ok := r.budget.TrySpend(pass.Operation())
	return ok
}

func distinctDomains(in []leads.LeadRecord, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range in {
		if l.Domain == "" || seen[l.Domain] {
			continue
		}
		seen[l.Domain] = true
		out = append(out, l.Domain)
		if len(out) == limit {
			break
		}
	}
	return out
}

// merge copies patch values into empty fields of l.
func merge(l *leads.LeadRecord, p Patch) {
	if l.PhoneNumber == "" && p.PhoneNumber != "" {
		l.PhoneNumber = p.PhoneNumber
	}
	if len(l.CareersLinks) == 0 && len(p.CareersLinks) > 0 {
		l.CareersLinks = append([]string(nil), p.CareersLinks...)
	}
	if len(p.SocialLinks) > 0 {
		links := make(map[string]string, len(l.SocialLinks)+len(p.SocialLinks))
		for k, v := range l.SocialLinks {
			links[k] = v
		}
		for k, v := range p.SocialLinks {
			if links[k] == "" {
				links[k] = v
			}
		}
		l.SocialLinks = links
	}
	if len(l.CompanyJobs) == 0 && len(p.Jobs) > 0 {
		l.CompanyJobs = append([]leads.JobPosting(nil), p.Jobs...)
	}
	if len(l.CompanyContext.RecentNews) == 0 && len(p.News) > 0 {
		l.CompanyContext.RecentNews = append([]leads.NewsItem(nil), p.News...)
	}
}
