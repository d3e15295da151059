package match

import (
	"time"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

// Engine applies one run's FilterCriteria. It is pure: the same input always
// yields the same output, and applying it twice equals applying it once.
type Engine struct {
	titles    *TitleMatcher
	locations *LocationMatcher
	firmo     Firmographics
}

// Filter builds an Engine. now anchors the startup heuristic.
func Filter(criteria leads.FilterCriteria, now time.Time) *Engine {
	return &Engine{
		titles:    NewTitleMatcher(criteria.Titles),
		locations: NewLocationMatcher(criteria.Locations),
		firmo:     NewFirmographics(criteria, now.Year()),
	}
}

// Titles exposes the title matcher, e.g. to derive provider hints.
func (e *Engine) Titles() *TitleMatcher {
	return e.titles
}

// Accept reports whether one lead passes every filter.
func (e *Engine) Accept(l leads.LeadRecord) bool {
	return e.titles.Match(l.Title) &&
		e.locations.Match(l.Location) &&
		e.firmo.Match(l.Company)
}

// Apply returns the accepted leads in input order.
func (e *Engine) Apply(in []leads.LeadRecord) []leads.LeadRecord {
	out := make([]leads.LeadRecord, 0, len(in))
	for _, l := range in {
		if e.Accept(l) {
			out = append(out, l)
		}
	}
	return out
}
