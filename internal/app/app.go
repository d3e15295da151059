// Package app builds the long-lived services of the lead enrichment service
// from configuration and owns their shutdown.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/agent"
	"github.com/JakeFAU/lead-enrichment/internal/clock/system"
	"github.com/JakeFAU/lead-enrichment/internal/config"
	"github.com/JakeFAU/lead-enrichment/internal/enrichment"
	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/id/uuid"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
	"github.com/JakeFAU/lead-enrichment/internal/provider"
	"github.com/JakeFAU/lead-enrichment/internal/provider/apollo"
	"github.com/JakeFAU/lead-enrichment/internal/provider/hunter"
	memorypublisher "github.com/JakeFAU/lead-enrichment/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/lead-enrichment/internal/publisher/pubsub"
	"github.com/JakeFAU/lead-enrichment/internal/robots"
	"github.com/JakeFAU/lead-enrichment/internal/storage/gcs"
	"github.com/JakeFAU/lead-enrichment/internal/storage/local"
	"github.com/JakeFAU/lead-enrichment/internal/storage/memory"
	"github.com/JakeFAU/lead-enrichment/internal/storage/postgres"
	"github.com/JakeFAU/lead-enrichment/internal/telemetry"
)

// localEventBuffer caps the run events kept when no Pub/Sub project is set.
const localEventBuffer = 100

// App holds the shared services. It is built once per process.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	agent  *agent.Agent

	closers []func(context.Context) error
}

// New builds every service named by cfg. It fails fast when a configured
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.onClose(func(ctx context.Context) error { return tp.Shutdown(ctx) })

	deps, err := a.buildDeps(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.agent = agent.New(agentConfig(cfg), deps)
	logger.Info("application services initialized",
		zap.Strings("providers", deps.Providers.Names()),
		zap.Int("passes", len(deps.Passes)),
		zap.String("store", cfg.Store.Driver),
		zap.String("export", cfg.Export.Driver),
	)
	return a, nil
}

// Agent returns the orchestrator.
func (a *App) Agent() *agent.Agent {
	return a.agent
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Close releases services in reverse construction order.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func agentConfig(cfg config.Config) agent.Config {
	out := agent.DefaultConfig()
	out.Parallelism = cfg.Agent.Parallelism
	out.MaxEmailsPerDomain = cfg.Agent.MaxEmailsPerDomain
	out.ZeroYieldThreshold = cfg.Agent.ZeroYieldThreshold
	out.Budget = cfg.Budget()
	out.Costs = cfg.UnitCosts()
	out.ProviderOrder = cfg.Agent.ProviderOrder
	out.PeopleSearchProviders = cfg.Agent.PeopleSearchProviders
	out.EnrichmentMaxDomains = cfg.Enrichment.MaxDomains
	if cfg.PubSub.Topic != "" {
		out.EventTopic = cfg.PubSub.Topic
	}
	if cfg.Export.Prefix != "" {
		out.ExportPrefix = cfg.Export.Prefix
	}
	return out
}

func (a *App) buildDeps(ctx context.Context) (agent.Deps, error) {
	cfg := a.cfg
	clock := system.New()
	client := fetcher.NewHTTPClient()

	var robotsCache *robots.Cache
	if cfg.Robots.Respect {
		robotsCache = robots.NewCache(client, robots.Config{
			UserAgent: cfg.HTTP.UserAgent,
			TTL:       cfg.RobotsTTL(),
			Timeout:   cfg.RequestTimeout(),
		}, clock, a.logger.Named("robots"))
	}
	retry := fetcher.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.HTTP.MaxAttempts
	if fb := cfg.RetryFallback(); fb > 0 {
		retry.Fallback = fb
	}
	f := fetcher.New(fetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		RequestTimeout: cfg.RequestTimeout(),
		MinHostDelay:   cfg.MinHostDelay(),
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		Retry:          retry,
	}, client, robotsCache, clock, a.logger.Named("fetcher"))

	hunterCfg := hunter.Config{APIKey: cfg.Providers.Hunter.APIKey, BaseURL: cfg.Providers.Hunter.BaseURL}
	hunterClient := hunter.New(hunterCfg, f, nil, a.logger)
	registry := provider.NewRegistry(
		hunterClient,
		apollo.New(apollo.Config{APIKey: cfg.Providers.Apollo.APIKey, BaseURL: cfg.Providers.Apollo.BaseURL}, f, nil, a.logger),
	)

	deps := agent.Deps{
		Providers: registry,
		Verifier:  hunter.NewVerifier(hunterCfg, f, hunterClient.Breaker(), a.logger),
		Passes:    a.buildPasses(f),
		Clock:     clock,
		IDs:       uuid.New(),
		Logger:    a.logger,
	}

	var err error
	if deps.Store, err = a.buildStore(ctx); err != nil {
		return agent.Deps{}, err
	}
	if deps.Blobs, err = a.buildBlobs(ctx); err != nil {
		return agent.Deps{}, err
	}
	if deps.Publisher, err = a.buildPublisher(ctx); err != nil {
		return agent.Deps{}, err
	}
	return deps, nil
}

func (a *App) buildPasses(f *fetcher.Fetcher) []enrichment.Pass {
	cfg := a.cfg
	var passes []enrichment.Pass
	if cfg.Enrichment.SiteScrape {
		passes = append(passes, enrichment.NewSiteScrape(f.Transport(), f.UserAgent(), cfg.RequestTimeout(), a.logger))
	}
	if cfg.Enrichment.News {
		passes = append(passes, enrichment.NewNews(cfg.Providers.News.APIKey, cfg.Providers.News.BaseURL, f))
	}
	if cfg.Enrichment.Jobs {
		passes = append(passes, enrichment.NewJobs(cfg.Providers.Greenhouse.BaseURL, f))
	}
	return passes
}

func (a *App) buildStore(ctx context.Context) (leads.RunStore, error) {
	switch a.cfg.Store.Driver {
	case "postgres":
		store, err := postgres.NewRunStore(ctx, postgres.Config{DSN: a.cfg.Store.DSN, Table: a.cfg.Store.Table})
		if err != nil {
			return nil, fmt.Errorf("init run store: %w", err)
		}
		a.onClose(func(context.Context) error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("init run store: %w", err)
		}
		a.logger.Info("using postgres run store", zap.String("table", a.cfg.Store.Table))
		return store, nil
	default:
		a.logger.Info("using in-memory run store; runs are lost on exit")
		return memory.NewRunStore(), nil
	}
}

func (a *App) buildBlobs(ctx context.Context) (leads.BlobStore, error) {
	switch a.cfg.Export.Driver {
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Export.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local export: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Export.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs export: %w", err)
		}
		return store, nil
	case "memory":
		return memory.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) buildPublisher(ctx context.Context) (leads.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		return memorypublisher.NewBounded(localEventBuffer), nil
	}
	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.onClose(func(context.Context) error { return pub.Close() })
	a.logger.Info("publishing run events to pubsub",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return pub, nil
}
