package leads

import (
	"strings"
	"time"
)

// IntRange is an inclusive numeric window. A zero bound means "unbounded" on that side.
type IntRange struct {
	Min int `json:"min,omitempty"`
	Max int `json:"max,omitempty"`
}

// Contains reports whether v lies inside the range.
func (r IntRange) Contains(v int) bool {
	if r.Min > 0 && v < r.Min {
		return false
	}
	if r.Max > 0 && v > r.Max {
		return false
	}
	return true
}

// Overlaps reports whether two ranges share at least one value.
func (r IntRange) Overlaps(o IntRange) bool {
	if r.Max > 0 && o.Min > 0 && o.Min > r.Max {
		return false
	}
	if o.Max > 0 && r.Min > 0 && r.Min > o.Max {
		return false
	}
	return true
}

// CompanyProfile carries the firmographic attributes a provider knows about the
// organization behind a domain. Every field is optional.
type CompanyProfile struct {
	Name         string    `json:"name,omitempty"`
	Industry     string    `json:"industry,omitempty"`
	Technologies []string  `json:"technologies,omitempty"`
	Employees    *IntRange `json:"employees,omitempty"`
	FoundedYear  *int      `json:"founded_year,omitempty"`
	Country      string    `json:"country,omitempty"`
}

// RawContactCandidate is one contact as reported by a provider, before
// deduplication and filtering.
type RawContactCandidate struct {
	Domain      string          `json:"domain"`
	Email       string          `json:"email"`
	Name        string          `json:"name,omitempty"`
	Title       string          `json:"title,omitempty"`
	Source      string          `json:"source"`
	LinkedInURL string          `json:"linkedin_url,omitempty"`
	Location    string          `json:"location,omitempty"`
	PhoneNumber string          `json:"phone_number,omitempty"`
	Company     *CompanyProfile `json:"company,omitempty"`
}

// FilterCriteria is supplied by the caller once per run. Nil pointers and empty
// slices mean the corresponding filter is inactive.
type FilterCriteria struct {
	Titles       []string  `json:"titles,omitempty"`
	Locations    []string  `json:"locations,omitempty"`
	IsStartup    *bool     `json:"is_startup,omitempty"`
	Sectors      []string  `json:"sectors,omitempty"`
	Technologies []string  `json:"technologies,omitempty"`
	CompanySize  *IntRange `json:"company_size,omitempty"`
	FoundedYear  *IntRange `json:"founded_year,omitempty"`
}

// ParseTitles splits a comma separated title query ("CEO, CFO") into its
// non-empty parts.
func ParseTitles(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EmailStatus is the verification verdict for a lead's address.
type EmailStatus string

// Verification verdicts.
const (
	EmailStatusUnverified    EmailStatus = ""
	EmailStatusDeliverable   EmailStatus = "deliverable"
	EmailStatusRisky         EmailStatus = "risky"
	EmailStatusUndeliverable EmailStatus = "undeliverable"
	EmailStatusUnknown       EmailStatus = "unknown"
)

// NewsItem is a recent article about the lead's company.
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// JobPosting is an open role advertised by the lead's company.
type JobPosting struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Location string `json:"location,omitempty"`
}

// CompanyContext groups company level context gathered after filtering.
type CompanyContext struct {
	RecentNews []NewsItem `json:"recent_news,omitempty"`
}

// LeadRecord is an accepted contact. Secondary enrichment only fills fields
// that are still empty.
type LeadRecord struct {
	RawContactCandidate
	EmailStatus    EmailStatus       `json:"email_status,omitempty"`
	CareersLinks   []string          `json:"careers_links,omitempty"`
	SocialLinks    map[string]string `json:"social_links,omitempty"`
	CompanyJobs    []JobPosting      `json:"company_jobs,omitempty"`
	CompanyContext CompanyContext    `json:"company_context"`
}

// NewLeadRecord promotes a candidate to a lead.
func NewLeadRecord(c RawContactCandidate) LeadRecord {
	return LeadRecord{RawContactCandidate: c}
}

// EmailKey is the case-insensitive identity used to deduplicate leads.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StopReason explains why a run ended.
type StopReason string

// Stop reasons reported in UsageStats.
const (
	StopCompleted       StopReason = "completed"
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopZeroYieldStreak StopReason = "zero_yield_streak"
	StopCanceled        StopReason = "canceled"
	StopNoProviders     StopReason = "no_providers"
)

// UsageStats summarizes what a run consumed and produced.
type UsageStats struct {
	ProviderCalls      map[string]int `json:"provider_calls"`
	CandidatesBySource map[string]int `json:"candidates_by_source"`
	LeadsBySource      map[string]int `json:"leads_by_source"`
	DomainsProcessed   int            `json:"domains_processed"`
	Verified           int            `json:"verified"`
	Limit              Money          `json:"limit"`
	Spent              Money          `json:"spent"`
	Remaining          Money          `json:"remaining"`
	StopReason         StopReason     `json:"stop_reason"`
}

// NewUsageStats returns stats with initialized maps.
func NewUsageStats() UsageStats {
	return UsageStats{
		ProviderCalls:      map[string]int{},
		CandidatesBySource: map[string]int{},
		LeadsBySource:      map[string]int{},
		StopReason:         StopCompleted,
	}
}

// RunResult is what Enrich hands back to the caller.
type RunResult struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Domains    []string     `json:"domains"`
	Leads      []LeadRecord `json:"leads"`
	Usage      UsageStats   `json:"usage"`
	ExportURI  string       `json:"export_uri,omitempty"`
}
