// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig                  `mapstructure:"server"`
	Auth       AuthConfig                    `mapstructure:"auth"`
	HTTP       HTTPConfig                    `mapstructure:"http"`
	Robots     RobotsConfig                  `mapstructure:"robots"`
	Agent      AgentConfig                   `mapstructure:"agent"`
	Costs      map[string]map[string]float64 `mapstructure:"costs"`
	Providers  ProvidersConfig               `mapstructure:"providers"`
	Enrichment EnrichmentConfig              `mapstructure:"enrichment"`
	Store      StoreConfig                   `mapstructure:"store"`
	Export     ExportConfig                  `mapstructure:"export"`
	PubSub     PubSubConfig                  `mapstructure:"pubsub"`
	Tracing    TracingConfig                 `mapstructure:"tracing"`
	Logging    LoggingConfig                 `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures the outbound fetcher.
type HTTPConfig struct {
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes         int64  `mapstructure:"max_body_bytes"`
	UserAgent            string `mapstructure:"user_agent"`
	MinHostDelayMs       int    `mapstructure:"min_host_delay_ms"`
	RetryFallbackSeconds int    `mapstructure:"retry_fallback_seconds"`
	MaxAttempts          int    `mapstructure:"max_attempts"`
}

// RobotsConfig controls robots.txt handling.
type RobotsConfig struct {
	Respect         bool `mapstructure:"respect"`
	CacheTTLMinutes int  `mapstructure:"cache_ttl_minutes"`
}

// AgentConfig tunes the orchestrator.
type AgentConfig struct {
	Parallelism           int      `mapstructure:"parallelism"`
	MaxEmailsPerDomain    int      `mapstructure:"max_emails_per_domain"`
	ZeroYieldThreshold    int      `mapstructure:"zero_yield_threshold"`
	BudgetUSD             float64  `mapstructure:"budget_usd"`
	ProviderOrder         []string `mapstructure:"provider_order"`
	PeopleSearchProviders []string `mapstructure:"people_search_providers"`
}

// ProviderConfig holds credentials and endpoint of one upstream API.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ProvidersConfig lists the upstream APIs.
type ProvidersConfig struct {
	Hunter     ProviderConfig `mapstructure:"hunter"`
	Apollo     ProviderConfig `mapstructure:"apollo"`
	News       ProviderConfig `mapstructure:"news"`
	Greenhouse ProviderConfig `mapstructure:"greenhouse"`
}

// EnrichmentConfig toggles the secondary passes.
type EnrichmentConfig struct {
	MaxDomains int  `mapstructure:"max_domains"`
	SiteScrape bool `mapstructure:"site_scrape"`
	News       bool `mapstructure:"news"`
	Jobs       bool `mapstructure:"jobs"`
}

// StoreConfig selects where finished runs are kept.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// ExportConfig selects where lead exports are written.
type ExportConfig struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig holds the run event destination. An empty project ID keeps
// events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TracingConfig controls span sampling.
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_body_bytes", 4<<20)
	v.SetDefault("http.user_agent", "LeadEnricher/1.0")
	v.SetDefault("http.min_host_delay_ms", 0)
	v.SetDefault("http.retry_fallback_seconds", 5)
	v.SetDefault("http.max_attempts", 2)
	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.cache_ttl_minutes", 60)
	v.SetDefault("agent.parallelism", 4)
	v.SetDefault("agent.max_emails_per_domain", 10)
	v.SetDefault("agent.zero_yield_threshold", 2)
	v.SetDefault("agent.budget_usd", 1.0)
	v.SetDefault("agent.provider_order", []string{"hunter", "apollo"})
	v.SetDefault("agent.people_search_providers", []string{"apollo"})
	v.SetDefault("costs.hunter.domain_search", 0.05)
	v.SetDefault("costs.hunter.email_verifier", 0.01)
	v.SetDefault("costs.apollo.people_search", 0.10)
	v.SetDefault("costs.news.search", 0.001)
	v.SetDefault("costs.site.scrape", 0.0)
	v.SetDefault("costs.jobs.greenhouse", 0.0)
	v.SetDefault("enrichment.max_domains", 5)
	v.SetDefault("enrichment.site_scrape", true)
	v.SetDefault("enrichment.news", false)
	v.SetDefault("enrichment.jobs", false)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.table", "lead_runs")
	v.SetDefault("export.driver", "none")
	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.prefix", "runs")
	v.SetDefault("pubsub.topic", "lead-runs")
	v.SetDefault("tracing.service_name", "lead-enrichment")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.MinHostDelayMs < 0 {
		return fmt.Errorf("http.min_host_delay_ms must be >= 0")
	}
	if c.Agent.Parallelism <= 0 {
		return fmt.Errorf("agent.parallelism must be > 0")
	}
	if c.Agent.MaxEmailsPerDomain <= 0 {
		return fmt.Errorf("agent.max_emails_per_domain must be > 0")
	}
	if c.Agent.ZeroYieldThreshold < 0 {
		return fmt.Errorf("agent.zero_yield_threshold must be >= 0")
	}
	if c.Agent.BudgetUSD < 0 {
		return fmt.Errorf("agent.budget_usd must be >= 0")
	}
	for provider, ops := range c.Costs {
		for op, usd := range ops {
			if usd < 0 {
				return fmt.Errorf("costs.%s.%s must be >= 0", provider, op)
			}
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Export.Driver {
	case "none", "memory":
	case "local":
		if c.Export.Dir == "" {
			return fmt.Errorf("export.dir is required for the local driver")
		}
	case "gcs":
		if c.Export.Bucket == "" {
			return fmt.Errorf("export.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("unknown export.driver %q", c.Export.Driver)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1]")
	}
	return nil
}

// UnitCosts flattens the costs table into operation prices.
func (c Config) UnitCosts() leads.ProviderUnitCost {
	out := make(leads.ProviderUnitCost)
	for provider, ops := range c.Costs {
		for op, usd := range ops {
			out[provider+"."+op] = leads.USD(usd)
		}
	}
	return out
}

// Operations lists the priced operations in a stable order.
func (c Config) Operations() []string {
	costs := c.UnitCosts()
	out := make([]string, 0, len(costs))
	for op := range costs {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Budget returns the default run budget.
func (c Config) Budget() leads.Money {
	return leads.USD(c.Agent.BudgetUSD)
}

// RequestTimeout is the outbound per-request timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MinHostDelay is the floor between two requests to one host.
func (c Config) MinHostDelay() time.Duration {
	return time.Duration(c.HTTP.MinHostDelayMs) * time.Millisecond
}

// RetryFallback is the wait used when a throttled response has no Retry-After.
func (c Config) RetryFallback() time.Duration {
	return time.Duration(c.HTTP.RetryFallbackSeconds) * time.Second
}

// RobotsTTL is how long a robots.txt policy is cached.
func (c Config) RobotsTTL() time.Duration {
	return time.Duration(c.Robots.CacheTTLMinutes) * time.Minute
}

// ServerTimeout bounds one API request, including the run it triggers.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
