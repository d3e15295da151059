// Package apollo talks to the Apollo people-search API.
package apollo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
	"github.com/JakeFAU/lead-enrichment/internal/provider"
)

// Provider and operation names.
const (
	Name                  = "apollo"
	OperationPeopleSearch = "apollo.people_search"
	DefaultBaseURL        = "https://api.apollo.io"

	searchPath        = "/api/v1/mixed_people/search"
	defaultPerPage    = 10
	maxPerPage        = 100
	lockedEmailPrefix = "email_not_unlocked@"
	inaccessibleCode  = "API_INACCESSIBLE"
	inaccessibleText  = "not accessible with this api_key"
)

// Config holds credentials. An empty APIKey disables the client.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client runs people searches.
type Client struct {
	cfg     Config
	fetcher provider.Fetcher
	breaker *provider.CircuitBreaker
	logger  *zap.Logger
}

// New builds a Client. A nil breaker gets a fresh one.
func New(cfg Config, f provider.Fetcher, breaker *provider.CircuitBreaker, logger *zap.Logger) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if breaker == nil {
		breaker = provider.NewCircuitBreaker(Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, fetcher: f, breaker: breaker, logger: logger.Named(Name)}
}

// Name implements provider.Client.
func (c *Client) Name() string { return Name }

// Operation implements provider.Client.
func (c *Client) Operation() string { return OperationPeopleSearch }

// Enabled implements provider.Client.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != "" && !c.breaker.Open()
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *provider.CircuitBreaker { return c.breaker }

// Search returns people Apollo lists at q.Domain.
func (c *Client) Search(ctx context.Context, q provider.Query) []leads.RawContactCandidate {
	if c.cfg.APIKey == "" {
		return nil
	}
	if c.breaker.Open() {
		metrics.ObserveProviderCall(Name, provider.OutcomeDisabled)
		c.logger.Debug("skipping disabled provider",
			zap.String("domain", q.Domain),
			zap.String("reason", c.breaker.Reason()),
			zap.Error(leads.ErrProviderDisabled),
		)
		return nil
	}

	perPage := q.Limit
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	body, err := c.post(ctx, currentPayload(q, perPage))
	if status := leads.StatusOf(err); status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		c.logger.Info("retrying people search with legacy payload",
			zap.String("domain", q.Domain),
			zap.Int("status_code", status),
		)
		body, err = c.post(ctx, legacyPayload(q, perPage))
	}
	if err != nil {
		c.handleError(q.Domain, err)
		return nil
	}

	candidates, err := parsePeople(body, q.Domain, perPage)
	if err != nil {
		metrics.ObserveProviderCall(Name, provider.OutcomeMalformed)
		c.logger.Warn("unexpected people search payload", zap.String("domain", q.Domain), zap.Error(err))
		return nil
	}
	if len(candidates) == 0 {
		metrics.ObserveProviderCall(Name, provider.OutcomeEmpty)
	} else {
		metrics.ObserveProviderCall(Name, provider.OutcomeOK)
	}
	return candidates
}

func currentPayload(q provider.Query, perPage int) map[string]any {
	payload := basePayload(q, perPage)
	payload["q_organization_domains_list"] = []string{q.Domain}
	return payload
}

func legacyPayload(q provider.Query, perPage int) map[string]any {
	payload := basePayload(q, perPage)
	payload["q_organization_domains"] = q.Domain
	return payload
}

func basePayload(q provider.Query, perPage int) map[string]any {
	payload := map[string]any{
		"page":     1,
		"per_page": perPage,
	}
	if len(q.Titles) > 0 {
		payload["person_titles"] = q.Titles
	}
	if len(q.Locations) > 0 {
		payload["person_locations"] = q.Locations
	}
	if q.Executive {
		payload["person_seniorities"] = []string{"owner", "founder", "c_suite"}
	}
	return payload
}

func (c *Client) post(ctx context.Context, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode people search: %w", err)
	}
	resp, err := c.fetcher.Fetch(ctx, fetcher.Request{
		Method: http.MethodPost,
		URL:    provider.ResolveEndpoint(c.cfg.BaseURL, searchPath),
		Header: http.Header{
			"Content-Type":  {"application/json"},
			"Accept":        {"application/json"},
			"Cache-Control": {"no-cache"},
			"X-Api-Key":     {c.cfg.APIKey},
		},
		Body: data,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) handleError(domain string, err error) {
	if reason, ok := planError(err); ok {
		c.breaker.Trip(reason)
		metrics.ObserveProviderCall(Name, provider.OutcomeTripped)
		c.logger.Warn("provider disabled for the rest of the process",
			zap.String("domain", domain),
			zap.String("reason", reason),
		)
		return
	}
	metrics.ObserveProviderCall(Name, provider.OutcomeError)
	c.logger.Warn("people search failed",
		zap.String("domain", domain),
		zap.Int("status_code", leads.StatusOf(err)),
		zap.Error(err),
	)
}

// planError recognizes responses that mean the key can never use this endpoint.
func planError(err error) (string, bool) {
	var httpErr *leads.HTTPError
	if !errors.As(err, &httpErr) {
		return "", false
	}
	switch httpErr.Status {
	case http.StatusUnauthorized:
		return "401 unauthorized", true
	case http.StatusForbidden:
	default:
		return "", false
	}
	var body struct {
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	_ = json.Unmarshal(httpErr.Body, &body)
	if strings.EqualFold(body.ErrorCode, inaccessibleCode) {
		return "403 " + inaccessibleCode, true
	}
	text := strings.ToLower(body.Error + " " + body.Message)
	if body.Error == "" && body.Message == "" {
		text = strings.ToLower(string(httpErr.Body))
	}
	if strings.Contains(text, inaccessibleText) {
		return "403 " + inaccessibleCode, true
	}
	return "", false
}

type person struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Email        string `json:"email"`
	LinkedInURL  string `json:"linkedin_url"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	PhoneNumbers []struct {
		RawNumber       string `json:"raw_number"`
		SanitizedNumber string `json:"sanitized_number"`
	} `json:"phone_numbers"`
	Organization *struct {
		Name                  string   `json:"name"`
		Industry              string   `json:"industry"`
		EstimatedNumEmployees int      `json:"estimated_num_employees"`
		FoundedYear           int      `json:"founded_year"`
		Country               string   `json:"country"`
		TechnologyNames       []string `json:"technology_names"`
	} `json:"organization"`
}

func parsePeople(body []byte, domain string, limit int) ([]leads.RawContactCandidate, error) {
	var resp struct {
		People   []person `json:"people"`
		Contacts []person `json:"contacts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", leads.ErrMalformedResponse, err)
	}

	all := append(resp.People, resp.Contacts...)
	out := make([]leads.RawContactCandidate, 0, len(all))
	for _, p := range all {
		if len(out) >= limit {
			break
		}
		email := strings.TrimSpace(p.Email)
		if email == "" || strings.HasPrefix(strings.ToLower(email), lockedEmailPrefix) {
			continue
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = strings.TrimSpace(p.FirstName + " " + p.LastName)
		}
		out = append(out, leads.RawContactCandidate{
			Domain:      domain,
			Email:       email,
			Name:        name,
			Title:       strings.TrimSpace(p.Title),
			Source:      Name,
			LinkedInURL: strings.TrimSpace(p.LinkedInURL),
			Location:    provider.JoinLocation(p.City, p.State, p.Country),
			PhoneNumber: firstPhone(p),
			Company:     company(p),
		})
	}
	return out, nil
}

func firstPhone(p person) string {
	for _, n := range p.PhoneNumbers {
		if n.SanitizedNumber != "" {
			return n.SanitizedNumber
		}
		if n.RawNumber != "" {
			return n.RawNumber
		}
	}
	return ""
}

func company(p person) *leads.CompanyProfile {
	org := p.Organization
	if org == nil {
		return nil
	}
	profile := &leads.CompanyProfile{
		Name:         org.Name,
		Industry:     org.Industry,
		Technologies: org.TechnologyNames,
		Country:      org.Country,
	}
	if org.EstimatedNumEmployees > 0 {
		profile.Employees = &leads.IntRange{Min: org.EstimatedNumEmployees, Max: org.EstimatedNumEmployees}
	}
	if org.FoundedYear > 0 {
		year := org.FoundedYear
		profile.FoundedYear = &year
	}
	return profile
}
