package match

import (
	"strings"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

const (
	startupMaxAgeYears  = 10
	startupMaxEmployees = 200
)

// Firmographics checks company attributes. Each criterion only applies when
// the company carries the attribute it tests.
type Firmographics struct {
	criteria leads.FilterCriteria
	refYear  int
}

// NewFirmographics pins the startup heuristic to refYear.
func NewFirmographics(criteria leads.FilterCriteria, refYear int) Firmographics {
	return Firmographics{criteria: criteria, refYear: refYear}
}

// Match reports whether company passes every applicable criterion.
func (f Firmographics) Match(company *leads.CompanyProfile) bool {
	if company == nil {
		return true
	}
	c := f.criteria
	if c.CompanySize != nil && company.Employees != nil && !c.CompanySize.Overlaps(*company.Employees) {
		return false
	}
	if c.FoundedYear != nil && company.FoundedYear != nil && !c.FoundedYear.Contains(*company.FoundedYear) {
		return false
	}
	if len(c.Sectors) > 0 && company.Industry != "" && !sectorMatch(c.Sectors, company.Industry) {
		return false
	}
	if len(c.Technologies) > 0 && len(company.Technologies) > 0 && !overlapFolded(c.Technologies, company.Technologies) {
		return false
	}
	if c.IsStartup != nil {
		if known, startup := f.startup(company); known && startup != *c.IsStartup {
			return false
		}
	}
	return true
}

// startup applies the age and headcount heuristic. known is false when the
// company lacks the data to decide.
func (f Firmographics) startup(company *leads.CompanyProfile) (known, startup bool) {
	if company.FoundedYear != nil && f.refYear-*company.FoundedYear > startupMaxAgeYears {
		return true, false
	}
	if company.Employees != nil && company.Employees.Min > startupMaxEmployees {
		return true, false
	}
	if company.FoundedYear == nil || company.Employees == nil {
		return false, false
	}
	if company.Employees.Max == 0 || company.Employees.Max > startupMaxEmployees {
		return false, false
	}
	return true, true
}

func sectorMatch(sectors []string, industry string) bool {
	folded := Fold(industry)
	for _, s := range sectors {
		fs := Fold(s)
		if fs == "" {
			continue
		}
		if strings.Contains(folded, fs) || strings.Contains(fs, folded) {
			return true
		}
	}
	return false
}

func overlapFolded(want, have []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[Fold(h)] = true
	}
	for _, w := range want {
		if set[Fold(w)] {
			return true
		}
	}
	return false
}
