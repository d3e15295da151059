// Package agent orchestrates one enrichment run: provider sweep under a
// budget, deduplication, filtering, verification, secondary passes and
// hand-off to storage and events.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/budget"
	"github.com/JakeFAU/lead-enrichment/internal/clock/system"
	"github.com/JakeFAU/lead-enrichment/internal/enrichment"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/match"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
	"github.com/JakeFAU/lead-enrichment/internal/provider"
)

const (
	tracerName = "github.com/JakeFAU/lead-enrichment/internal/agent"

	// EventRunCompleted is the type of the event published after each run.
	EventRunCompleted = "run.completed"

	defaultParallelism        = 4
	defaultMaxEmailsPerDomain = 10
	defaultZeroYieldThreshold = 2
)

// ErrNoDomains is returned by Enrich when no usable domain was supplied.
var ErrNoDomains = errors.New("no valid domains")

// Config tunes the orchestrator.
type Config struct {
	Parallelism        int
	MaxEmailsPerDomain int
	// ZeroYieldThreshold ends a run after this many consecutive empty
	// domains. Zero disables the check.
	ZeroYieldThreshold int
	// Budget is the default spend ceiling of one run.
	Budget leads.Money
	Costs  leads.ProviderUnitCost
	// ProviderOrder lists providers by name; empty means registration order.
	ProviderOrder []string
	// PeopleSearchProviders are only used when Options.UsePeopleSearch is set.
	PeopleSearchProviders []string
	EnrichmentMaxDomains  int
	EventTopic            string
	ExportPrefix          string
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Parallelism:           defaultParallelism,
		MaxEmailsPerDomain:    defaultMaxEmailsPerDomain,
		ZeroYieldThreshold:    defaultZeroYieldThreshold,
		Budget:                leads.USD(1),
		PeopleSearchProviders: []string{"apollo"},
		EnrichmentMaxDomains:  enrichment.DefaultMaxDomains,
		EventTopic:            "lead-runs",
		ExportPrefix:          "runs",
	}
}

// Deps are the collaborators of an Agent. Everything except Providers is optional.
type Deps struct {
	Providers *provider.Registry
	Verifier  provider.Verifier
	Passes    []enrichment.Pass
	Store     leads.RunStore
	Blobs     leads.BlobStore
	Publisher leads.Publisher
	Clock     leads.Clock
	IDs       leads.IDGenerator
	Logger    *zap.Logger
}

// Agent is long-lived: provider circuit breakers live on its clients and
// survive across runs.
type Agent struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer
}

// New builds an Agent.
func New(cfg Config, deps Deps) *Agent {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.MaxEmailsPerDomain <= 0 {
		cfg.MaxEmailsPerDomain = defaultMaxEmailsPerDomain
	}
	if cfg.ZeroYieldThreshold < 0 {
		cfg.ZeroYieldThreshold = 0
	}
	if cfg.EnrichmentMaxDomains <= 0 {
		cfg.EnrichmentMaxDomains = enrichment.DefaultMaxDomains
	}
	if deps.Providers == nil {
		deps.Providers = provider.NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Agent{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.Named("agent"),
		tracer: otel.Tracer(tracerName),
	}
}

// Options are the caller's choices for one Enrich call.
type Options struct {
	UsePeopleSearch bool                 `json:"use_people_search"`
	VerifyEmails    bool                 `json:"verify_emails"`
	Title           string               `json:"title,omitempty"`
	Locations       []string             `json:"locations,omitempty"`
	Filters         leads.FilterCriteria `json:"filters"`
	// Budget overrides the configured run budget when set.
	Budget *leads.Money `json:"budget,omitempty"`
}

// RunEvent is published when a run finishes.
type RunEvent struct {
	Type       string           `json:"type"`
	RunID      string           `json:"run_id"`
	Domains    int              `json:"domains"`
	Leads      int              `json:"leads"`
	Usage      leads.UsageStats `json:"usage"`
	ExportURI  string           `json:"export_uri,omitempty"`
	FinishedAt string           `json:"finished_at"`
}

// Attributes are attached to the published message.
func (e RunEvent) Attributes() map[string]string {
	return map[string]string{"type": e.Type, "run_id": e.RunID}
}

// Enrich finds, filters and enriches leads for domains. limit caps the
// candidates kept per domain; zero uses the configured default. Provider
// and host failures never surface as errors: the result may simply be short.
func (a *Agent) Enrich(ctx context.Context, domains []string, limit int, opts Options) (leads.RunResult, error) {
	normalized := leads.DomainsFromURLs(domains)
	if len(normalized) == 0 {
		return leads.RunResult{}, ErrNoDomains
	}
	runID, err := a.newRunID()
	if err != nil {
		return leads.RunResult{}, err
	}
	logger := a.logger.With(zap.String("run_id", runID))
	started := a.deps.Clock.Now()

	limitMoney := a.cfg.Budget
	if opts.Budget != nil {
		limitMoney = *opts.Budget
	}
	tracker := budget.New(limitMoney, a.cfg.Costs, logger)

	criteria := opts.Filters
	criteria.Titles = append(append([]string(nil), criteria.Titles...), leads.ParseTitles(opts.Title)...)
	criteria.Locations = append(append([]string(nil), criteria.Locations...), opts.Locations...)
	engine := match.Filter(criteria, started)

	out := a.Run(ctx, RunInput{
		Domains:      normalized,
		TitleHint:    titleHints(criteria.Titles),
		Locations:    criteria.Locations,
		Executive:    engine.Titles().Executive(),
		PerDomainCap: limit,
		Providers:    a.providersFor(opts),
		Budget:       tracker,
	})

	usage := leads.NewUsageStats()
	usage.ProviderCalls = out.ProviderCalls
	usage.DomainsProcessed = len(out.Results)
	usage.StopReason = out.StopReason

	candidates := out.Candidates()
	for _, c := range candidates {
		usage.CandidatesBySource[c.Source]++
	}
	accepted := engine.Apply(dedupe(candidates))
	if opts.VerifyEmails {
		accepted = a.verify(ctx, accepted, tracker, &usage, logger)
	}
	accepted = enrichment.NewRunner(a.cfg.EnrichmentMaxDomains, tracker, logger).Apply(ctx, accepted, a.deps.Passes...)
	normalizePhones(accepted)

	for _, l := range accepted {
		usage.LeadsBySource[l.Source]++
		metrics.ObserveLeadAccepted(l.Source)
	}
	usage.Limit = tracker.Limit()
	usage.Spent = tracker.Spent()
	usage.Remaining = tracker.Remaining()
	metrics.ObserveRun(string(usage.StopReason))

	result := leads.RunResult{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: a.deps.Clock.Now(),
		Domains:    normalized,
		Leads:      accepted,
		Usage:      usage,
	}
	if result.Leads == nil {
		result.Leads = []leads.LeadRecord{}
	}

	// Hand-off runs even when the caller canceled, so partial runs are kept.
	handoff := context.WithoutCancel(ctx)
	result.ExportURI = a.export(handoff, result, logger)
	a.persist(handoff, result, logger)
	a.publish(handoff, result, logger)

	logger.Info("run finished",
		zap.Int("domains", len(normalized)),
		zap.Int("processed", usage.DomainsProcessed),
		zap.Int("leads", len(result.Leads)),
		zap.String("stop_reason", string(usage.StopReason)),
		zap.Stringer("spent", usage.Spent),
	)
	return result, nil
}

// GetRun loads a stored run.
func (a *Agent) GetRun(ctx context.Context, runID string) (leads.RunResult, error) {
	if a.deps.Store == nil {
		return leads.RunResult{}, fmt.Errorf("get run %s: no run store configured", runID)
	}
	return a.deps.Store.GetRun(ctx, runID)
}

func (a *Agent) newRunID() (string, error) {
	if a.deps.IDs == nil {
		return fmt.Sprintf("run-%d", a.deps.Clock.Now().UnixNano()), nil
	}
	id, err := a.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func (a *Agent) providersFor(opts Options) []provider.Client {
	peopleSearch := make(map[string]bool, len(a.cfg.PeopleSearchProviders))
	for _, name := range a.cfg.PeopleSearchProviders {
		peopleSearch[name] = true
	}
	var out []provider.Client
	for _, c := range a.deps.Providers.Ordered(a.cfg.ProviderOrder) {
		if peopleSearch[c.Name()] && !opts.UsePeopleSearch {
			continue
		}
		out = append(out, c)
	}
	return out
}

// titleHints keeps the caller's wording for providers, one entry per title.
func titleHints(titles []string) []string {
	var out []string
	for _, t := range titles {
		out = append(out, leads.ParseTitles(t)...)
	}
	return out
}

// dedupe keeps the first lead per email. Later duplicates only fill fields
// the first one lacks.
func dedupe(candidates []leads.RawContactCandidate) []leads.LeadRecord {
	index := make(map[string]int, len(candidates))
	out := make([]leads.LeadRecord, 0, len(candidates))
	for _, c := range candidates {
		key := leads.EmailKey(c.Email)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			fillCandidate(&out[i].RawContactCandidate, c)
			continue
		}
		index[key] = len(out)
		out = append(out, leads.NewLeadRecord(c))
	}
	return out
}

func fillCandidate(dst *leads.RawContactCandidate, src leads.RawContactCandidate) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.LinkedInURL == "" {
		dst.LinkedInURL = src.LinkedInURL
	}
	if dst.Location == "" {
		dst.Location = src.Location
	}
	if dst.PhoneNumber == "" {
		dst.PhoneNumber = src.PhoneNumber
	}
	if dst.Company == nil {
		dst.Company = src.Company
	}
}

// verify checks each address while the budget allows. Undeliverable
// addresses are dropped; unchecked ones are kept as unverified.
func (a *Agent) verify(ctx context.Context, in []leads.LeadRecord, tracker *budget.Tracker, usage *leads.UsageStats, logger *zap.Logger) []leads.LeadRecord {
	v := a.deps.Verifier
	if v == nil || !v.Enabled() {
		return in
	}
	out := make([]leads.LeadRecord, 0, len(in))
	for i, l := range in {
		if ctx.Err() != nil || !v.Enabled() {
			return append(out, in[i:]...)
		}
		if _, ok := tracker.TrySpend(v.Operation()); !ok {
			logger.Info("budget exhausted; skipping remaining verifications", zap.Int("unverified", len(in)-i))
			return append(out, in[i:]...)
		}
		usage.ProviderCalls[v.Name()]++
		l.EmailStatus = v.Verify(ctx, l.Email)
		usage.Verified++
		if l.EmailStatus == leads.EmailStatusUndeliverable {
			continue
		}
		out = append(out, l)
	}
	return out
}

func normalizePhones(in []leads.LeadRecord) {
	for i := range in {
		if in[i].PhoneNumber == "" {
			continue
		}
		region := match.CountryCode(in[i].Location)
		if region == "" && in[i].Company != nil {
			region = match.CountryCode(in[i].Company.Country)
		}
		in[i].PhoneNumber = match.NormalizePhone(in[i].PhoneNumber, region)
	}
}

func (a *Agent) export(ctx context.Context, result leads.RunResult, logger *zap.Logger) string {
	if a.deps.Blobs == nil {
		return ""
	}
	data, err := json.MarshalIndent(result.Leads, "", "  ")
	if err != nil {
		logger.Warn("encode lead export failed", zap.Error(err))
		return ""
	}
	key := path.Join(strings.Trim(a.cfg.ExportPrefix, "/"), result.ID+".json")
	uri, err := a.deps.Blobs.PutObject(ctx, key, "application/json", bytes.NewReader(data))
	if err != nil {
		logger.Warn("lead export failed", zap.String("path", key), zap.Error(err))
		return ""
	}
	return uri
}

func (a *Agent) persist(ctx context.Context, result leads.RunResult, logger *zap.Logger) {
	if a.deps.Store == nil {
		return
	}
	if err := a.deps.Store.SaveRun(ctx, result); err != nil {
		logger.Warn("save run failed", zap.Error(err))
	}
}

func (a *Agent) publish(ctx context.Context, result leads.RunResult, logger *zap.Logger) {
	if a.deps.Publisher == nil {
		return
	}
	event := RunEvent{
		Type:       EventRunCompleted,
		RunID:      result.ID,
		Domains:    len(result.Domains),
		Leads:      len(result.Leads),
		Usage:      result.Usage,
		ExportURI:  result.ExportURI,
		FinishedAt: result.FinishedAt.UTC().Format(time.RFC3339),
	}
	if _, err := a.deps.Publisher.Publish(ctx, a.cfg.EventTopic, event); err != nil {
		logger.Warn("publish run event failed", zap.String("topic", a.cfg.EventTopic), zap.Error(err))
	}
}
