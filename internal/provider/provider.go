// Package provider defines the contact-data provider contract shared by the
// concrete clients and the circuit breaker each client owns.
package provider

import (
	"context"
	"strconv"
	"strings"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

// Outcomes reported to the provider call metric.
const (
	OutcomeOK        = "ok"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
	OutcomeDisabled  = "disabled"
	OutcomeMalformed = "malformed"
	OutcomeTripped   = "tripped"
)

// Query is what the orchestrator asks a provider for one domain.
type Query struct {
	Domain    string
	Titles    []string
	Locations []string
	// Executive is set when the title hint targets leadership roles; providers
	// that support seniority filters narrow the search with it.
	Executive bool
	Limit     int
}

// Client searches one provider for contacts at a domain. Search never fails:
// every failure mode resolves to an empty result and a log line.
type Client interface {
	Name() string
	// Operation is the cost key billed for one Search call.
	Operation() string
	// Enabled is false when the client has no credential or its breaker is open.
	Enabled() bool
	Search(ctx context.Context, q Query) []leads.RawContactCandidate
}

// Verifier checks whether an address accepts mail.
type Verifier interface {
	Name() string
	Operation() string
	Enabled() bool
	Verify(ctx context.Context, email string) leads.EmailStatus
}

// Fetcher is the transport every client calls through.
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error)
}

// ParseHeadcount turns a provider headcount bucket ("51-200", "10001+",
// "1,001-5,000") into a range. It returns nil for anything it cannot read.
func ParseHeadcount(raw string) *leads.IntRange {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return nil
	}
	if strings.HasSuffix(raw, "+") {
		n, err := strconv.Atoi(strings.TrimSuffix(raw, "+"))
		if err != nil || n <= 0 {
			return nil
		}
		return &leads.IntRange{Min: n}
	}
	lo, hi, found := strings.Cut(raw, "-")
	if !found {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil
		}
		return &leads.IntRange{Min: n, Max: n}
	}
	minN, err1 := strconv.Atoi(strings.TrimSpace(lo))
	maxN, err2 := strconv.Atoi(strings.TrimSpace(hi))
	if err1 != nil || err2 != nil || maxN < minN {
		return nil
	}
	return &leads.IntRange{Min: minN, Max: maxN}
}

// JoinLocation builds "City, Country" from whichever parts are present.
func JoinLocation(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// ResolveEndpoint joins a base URL and a path without doubling slashes.
func ResolveEndpoint(baseURL, path string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
