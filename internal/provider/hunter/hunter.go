// Package hunter talks to the Hunter domain-search and email-verifier APIs.
package hunter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
	"github.com/JakeFAU/lead-enrichment/internal/provider"
)

// Provider and operation names.
const (
	Name                   = "hunter"
	OperationDomainSearch  = "hunter.domain_search"
	OperationEmailVerifier = "hunter.email_verifier"
	DefaultBaseURL         = "https://api.hunter.io"

	defaultLimit = 10
	maxLimit     = 100
)

// planErrorIDs are error ids that mean the account cannot use the API at all.
var planErrorIDs = map[string]bool{
	"restricted_account":    true,
	"plan_limit":            true,
	"unauthorized":          true,
	"authentication_failed": true,
}

var apiKeyParam = regexp.MustCompile(`api_key=[^&"\s]+`)

// Config holds credentials. An empty APIKey disables the client.
type Config struct {
	APIKey  string
	BaseURL string
}

func (c Config) withDefaults() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Client runs domain searches.
type Client struct {
	cfg     Config
	fetcher provider.Fetcher
	breaker *provider.CircuitBreaker
	logger  *zap.Logger
}

// New builds a Client. A nil breaker gets a fresh one; pass the same breaker
// to NewVerifier so both share the account's fate.
func New(cfg Config, f provider.Fetcher, breaker *provider.CircuitBreaker, logger *zap.Logger) *Client {
	if breaker == nil {
		breaker = provider.NewCircuitBreaker(Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg.withDefaults(),
		fetcher: f,
		breaker: breaker,
		logger:  logger.Named(Name),
	}
}

// Name implements provider.Client.
func (c *Client) Name() string { return Name }

// Operation implements provider.Client.
func (c *Client) Operation() string { return OperationDomainSearch }

// Enabled implements provider.Client.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != "" && !c.breaker.Open()
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *provider.CircuitBreaker { return c.breaker }

// Search returns contacts Hunter knows at q.Domain.
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

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	body, err := c.domainSearch(ctx, q.Domain, limit, q.Executive)
	if err != nil && q.Executive && rejectsFilters(err) {
		c.logger.Info("retrying domain search without seniority filters", zap.String("domain", q.Domain))
		body, err = c.domainSearch(ctx, q.Domain, limit, false)
	}
	if err != nil {
		c.handleError(q.Domain, err)
		return nil
	}

	candidates, err := parseDomainSearch(body, q.Domain, limit)
	if err != nil {
		metrics.ObserveProviderCall(Name, provider.OutcomeMalformed)
		c.logger.Warn("unexpected domain search payload", zap.String("domain", q.Domain), zap.Error(err))
		return nil
	}
	if len(candidates) == 0 {
		metrics.ObserveProviderCall(Name, provider.OutcomeEmpty)
	} else {
		metrics.ObserveProviderCall(Name, provider.OutcomeOK)
	}
	return candidates
}

func (c *Client) domainSearch(ctx context.Context, domain string, limit int, executive bool) ([]byte, error) {
	params := url.Values{}
	params.Set("domain", domain)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("api_key", c.cfg.APIKey)
	if executive {
		params.Set("seniority", "executive")
		params.Set("department", "executive,management")
	}
	resp, err := c.fetcher.Fetch(ctx, fetcher.Request{
		Method: http.MethodGet,
		URL:    provider.ResolveEndpoint(c.cfg.BaseURL, "/v2/domain-search") + "?" + params.Encode(),
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) handleError(domain string, err error) {
	if tripOnPlanError(c.breaker, err) {
		metrics.ObserveProviderCall(Name, provider.OutcomeTripped)
		c.logger.Warn("provider disabled for the rest of the process",
			zap.String("domain", domain),
			zap.String("reason", c.breaker.Reason()),
		)
		return
	}
	metrics.ObserveProviderCall(Name, provider.OutcomeError)
	c.logger.Warn("domain search failed",
		zap.String("domain", domain),
		zap.Int("status_code", leads.StatusOf(err)),
		zap.Error(redact(err)),
	)
}

type apiError struct {
	ID      string `json:"id"`
	Code    int    `json:"code"`
	Details string `json:"details"`
}

type errorEnvelope struct {
	Errors []apiError `json:"errors"`
}

func decodeErrors(err error) (int, []apiError) {
	var httpErr *leads.HTTPError
	if !errors.As(err, &httpErr) {
		return 0, nil
	}
	var env errorEnvelope
	if jsonErr := json.Unmarshal(httpErr.Body, &env); jsonErr != nil {
		return httpErr.Status, nil
	}
	return httpErr.Status, env.Errors
}

// rejectsFilters reports a 400 caused by the seniority or department params.
func rejectsFilters(err error) bool {
	status, apiErrs := decodeErrors(err)
	if status != http.StatusBadRequest {
		return false
	}
	if len(apiErrs) == 0 {
		return true
	}
	for _, e := range apiErrs {
		details := strings.ToLower(e.Details)
		if e.ID == "wrong_params" || strings.Contains(details, "seniority") || strings.Contains(details, "department") {
			return true
		}
	}
	return false
}

// tripOnPlanError opens breaker for 401/403 responses carrying a plan or
// authorization error id.
func tripOnPlanError(breaker *provider.CircuitBreaker, err error) bool {
	status, apiErrs := decodeErrors(err)
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return false
	}
	for _, e := range apiErrs {
		if planErrorIDs[e.ID] {
			breaker.Trip(fmt.Sprintf("%d %s", status, e.ID))
			return true
		}
	}
	return false
}

// redact strips the api_key query parameter that url errors echo back.
func redact(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !apiKeyParam.MatchString(msg) {
		return err
	}
	return errors.New(apiKeyParam.ReplaceAllString(msg, "api_key=REDACTED"))
}

type domainSearchResponse struct {
	Data *struct {
		Domain       string   `json:"domain"`
		Organization string   `json:"organization"`
		Industry     string   `json:"industry"`
		Headcount    string   `json:"headcount"`
		Technologies []string `json:"technologies"`
		Country      *string  `json:"country"`
		State        *string  `json:"state"`
		City         *string  `json:"city"`
		Emails       []struct {
			Value       string  `json:"value"`
			Type        string  `json:"type"`
			Confidence  int     `json:"confidence"`
			FirstName   *string `json:"first_name"`
			LastName    *string `json:"last_name"`
			Position    *string `json:"position"`
			LinkedIn    *string `json:"linkedin"`
			PhoneNumber *string `json:"phone_number"`
		} `json:"emails"`
	} `json:"data"`
}

func parseDomainSearch(body []byte, domain string, limit int) ([]leads.RawContactCandidate, error) {
	var resp domainSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", leads.ErrMalformedResponse, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: missing data object", leads.ErrMalformedResponse)
	}
	data := resp.Data

	var company *leads.CompanyProfile
	if data.Organization != "" || data.Industry != "" || data.Headcount != "" || len(data.Technologies) > 0 {
		company = &leads.CompanyProfile{
			Name:         data.Organization,
			Industry:     data.Industry,
			Technologies: data.Technologies,
			Employees:    provider.ParseHeadcount(data.Headcount),
			Country:      deref(data.Country),
		}
	}
	location := provider.JoinLocation(deref(data.City), deref(data.Country))

	out := make([]leads.RawContactCandidate, 0, len(data.Emails))
	for _, e := range data.Emails {
		if len(out) >= limit {
			break
		}
		email := strings.TrimSpace(e.Value)
		if email == "" || !strings.Contains(email, "@") {
			continue
		}
		out = append(out, leads.RawContactCandidate{
			Domain:      domain,
			Email:       email,
			Name:        strings.TrimSpace(deref(e.FirstName) + " " + deref(e.LastName)),
			Title:       strings.TrimSpace(deref(e.Position)),
			Source:      Name,
			LinkedInURL: deref(e.LinkedIn),
			Location:    location,
			PhoneNumber: deref(e.PhoneNumber),
			Company:     company,
		})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
