package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

const (
	// OperationJobsBoard is the cost key of one job board lookup.
	OperationJobsBoard = "jobs.greenhouse"
	// DefaultGreenhouseBaseURL is the public job board API.
	DefaultGreenhouseBaseURL = "https://boards-api.greenhouse.io"

	maxJobs = 10
)

// Jobs reads a company's public Greenhouse board. The board slug is guessed
// from the first label of the domain.
type Jobs struct {
	baseURL string
	fetcher Fetcher
}

// NewJobs builds the pass.
func NewJobs(baseURL string, f Fetcher) *Jobs {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGreenhouseBaseURL
	}
	return &Jobs{baseURL: strings.TrimRight(baseURL, "/"), fetcher: f}
}

// Name implements Pass.
func (j *Jobs) Name() string { return "jobs" }

// Operation implements Pass.
func (j *Jobs) Operation() string { return OperationJobsBoard }

// Enabled implements Pass.
func (j *Jobs) Enabled() bool { return j.fetcher != nil }

// Run implements Pass.
func (j *Jobs) Run(ctx context.Context, domain string) (Patch, error) {
	slug := boardSlug(domain)
	if slug == "" {
		return Patch{}, nil
	}
	resp, err := j.fetcher.Fetch(ctx, fetcher.Request{
		Method: http.MethodGet,
		URL:    j.baseURL + "/v1/boards/" + url.PathEscape(slug) + "/jobs",
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return Patch{}, err
	}

	var payload struct {
		Jobs []struct {
			Title       string `json:"title"`
			AbsoluteURL string `json:"absolute_url"`
			Location    struct {
				Name string `json:"name"`
			} `json:"location"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return Patch{}, fmt.Errorf("jobs for %s: %w: %w", domain, leads.ErrMalformedResponse, err)
	}

	var patch Patch
	for _, job := range payload.Jobs {
		if job.Title == "" {
			continue
		}
		patch.Jobs = append(patch.Jobs, leads.JobPosting{
			Title:    strings.TrimSpace(job.Title),
			URL:      job.AbsoluteURL,
			Location: strings.TrimSpace(job.Location.Name),
		})
		if len(patch.Jobs) == maxJobs {
			break
		}
	}
	return patch, nil
}

func boardSlug(domain string) string {
	label, _, _ := strings.Cut(strings.ToLower(domain), ".")
	return strings.TrimSpace(label)
}
