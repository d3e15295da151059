package hunter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
	"github.com/JakeFAU/lead-enrichment/internal/provider"
)

const verifierName = "hunter_verifier"

// Verifier checks addresses with the email-verifier endpoint.
type Verifier struct {
	cfg     Config
	fetcher provider.Fetcher
	breaker *provider.CircuitBreaker
	logger  *zap.Logger
}

// NewVerifier builds a Verifier sharing breaker with the domain search client.
func NewVerifier(cfg Config, f provider.Fetcher, breaker *provider.CircuitBreaker, logger *zap.Logger) *Verifier {
	if breaker == nil {
		breaker = provider.NewCircuitBreaker(Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		cfg:     cfg.withDefaults(),
		fetcher: f,
		breaker: breaker,
		logger:  logger.Named(verifierName),
	}
}

// Name implements provider.Verifier.
func (v *Verifier) Name() string { return verifierName }

// Operation implements provider.Verifier.
func (v *Verifier) Operation() string { return OperationEmailVerifier }

// Enabled implements provider.Verifier.
func (v *Verifier) Enabled() bool {
	return v.cfg.APIKey != "" && !v.breaker.Open()
}

// Verify returns the deliverability verdict for email, or unknown on failure.
func (v *Verifier) Verify(ctx context.Context, email string) leads.EmailStatus {
	if !v.Enabled() {
		return leads.EmailStatusUnknown
	}
	params := url.Values{}
	params.Set("email", email)
	params.Set("api_key", v.cfg.APIKey)
	resp, err := v.fetcher.Fetch(ctx, fetcher.Request{
		Method: http.MethodGet,
		URL:    provider.ResolveEndpoint(v.cfg.BaseURL, "/v2/email-verifier") + "?" + params.Encode(),
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		if tripOnPlanError(v.breaker, err) {
			metrics.ObserveProviderCall(verifierName, provider.OutcomeTripped)
			v.logger.Warn("verifier disabled for the rest of the process", zap.String("reason", v.breaker.Reason()))
			return leads.EmailStatusUnknown
		}
		metrics.ObserveProviderCall(verifierName, provider.OutcomeError)
		v.logger.Warn("email verification failed", zap.Int("status_code", leads.StatusOf(err)), zap.Error(redact(err)))
		return leads.EmailStatusUnknown
	}

	var payload struct {
		Data *struct {
			Status string `json:"status"`
			Result string `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil || payload.Data == nil {
		metrics.ObserveProviderCall(verifierName, provider.OutcomeMalformed)
		v.logger.Warn("unexpected verifier payload", zap.Error(leads.ErrMalformedResponse))
		return leads.EmailStatusUnknown
	}
	metrics.ObserveProviderCall(verifierName, provider.OutcomeOK)
	return verdict(payload.Data.Result, payload.Data.Status)
}

func verdict(result, status string) leads.EmailStatus {
	switch strings.ToLower(result) {
	case "deliverable":
		return leads.EmailStatusDeliverable
	case "undeliverable":
		return leads.EmailStatusUndeliverable
	case "risky":
		return leads.EmailStatusRisky
	}
	switch strings.ToLower(status) {
	case "valid":
		return leads.EmailStatusDeliverable
	case "invalid":
		return leads.EmailStatusUndeliverable
	case "accept_all", "webmail", "disposable":
		return leads.EmailStatusRisky
	}
	return leads.EmailStatusUnknown
}
