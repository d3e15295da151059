package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Agent.Parallelism != 4 || cfg.Agent.ZeroYieldThreshold != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if got := cfg.Budget(); got != leads.USD(1) {
		t.Fatalf("expected $1 budget, got %s", got)
	}
	if got := cfg.RetryFallback(); got != 5*time.Second {
		t.Fatalf("expected 5s retry fallback, got %v", got)
	}
	costs := cfg.UnitCosts()
	if costs["hunter.domain_search"] != leads.USD(0.05) || costs["apollo.people_search"] != leads.USD(0.10) {
		t.Fatalf("unexpected default costs: %v", costs)
	}
	if !cfg.Robots.Respect || cfg.RobotsTTL() != time.Hour {
		t.Fatalf("expected robots respected with 1h ttl")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
http:
  timeout_seconds: 45
  user_agent: test-agent
  min_host_delay_ms: 250
  max_attempts: 3
agent:
  parallelism: 8
  zero_yield_threshold: 0
  budget_usd: 2.5
costs:
  hunter:
    domain_search: 0.2
providers:
  hunter:
    api_key: hk
  apollo:
    api_key: ak
    base_url: http://apollo.local
store:
  driver: postgres
  dsn: postgres://localhost/leads
export:
  driver: local
  dir: /tmp/exports
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected server and auth overrides: %+v", cfg)
	}
	if cfg.RequestTimeout() != 45*time.Second || cfg.MinHostDelay() != 250*time.Millisecond {
		t.Fatalf("expected http overrides, got %v and %v", cfg.RequestTimeout(), cfg.MinHostDelay())
	}
	if cfg.Agent.Parallelism != 8 || cfg.Agent.ZeroYieldThreshold != 0 || cfg.Budget() != leads.USD(2.5) {
		t.Fatalf("expected agent overrides: %+v", cfg.Agent)
	}
	if got := cfg.UnitCosts()["hunter.domain_search"]; got != leads.USD(0.2) {
		t.Fatalf("expected overridden cost, got %s", got)
	}
	if got := cfg.UnitCosts()["hunter.email_verifier"]; got != leads.USD(0.01) {
		t.Fatalf("expected sibling default to survive, got %s", got)
	}
	if cfg.Providers.Apollo.BaseURL != "http://apollo.local" || cfg.Providers.Hunter.APIKey != "hk" {
		t.Fatalf("expected provider overrides: %+v", cfg.Providers)
	}
	if cfg.Store.Driver != "postgres" || cfg.Export.Driver != "local" || cfg.Logging.Development {
		t.Fatalf("expected store/export/logging overrides")
	}
	ops := cfg.Operations()
	if len(ops) == 0 || ops[0] != "apollo.people_search" {
		t.Fatalf("expected sorted operations, got %v", ops)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		HTTP:    HTTPConfig{TimeoutSeconds: 10, MaxAttempts: 2},
		Agent:   AgentConfig{Parallelism: 1, MaxEmailsPerDomain: 5},
		Store:   StoreConfig{Driver: "memory"},
		Export:  ExportConfig{Driver: "none"},
		Tracing: TracingConfig{SampleRatio: 1},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"invalid attempts", func(c *Config) { c.HTTP.MaxAttempts = 0 }, "http.max_attempts"},
		{"negative host delay", func(c *Config) { c.HTTP.MinHostDelayMs = -1 }, "http.min_host_delay_ms"},
		{"invalid parallelism", func(c *Config) { c.Agent.Parallelism = 0 }, "agent.parallelism"},
		{"invalid cap", func(c *Config) { c.Agent.MaxEmailsPerDomain = 0 }, "agent.max_emails_per_domain"},
		{"negative streak", func(c *Config) { c.Agent.ZeroYieldThreshold = -1 }, "agent.zero_yield_threshold"},
		{"negative budget", func(c *Config) { c.Agent.BudgetUSD = -1 }, "agent.budget_usd"},
		{"negative cost", func(c *Config) { c.Costs = map[string]map[string]float64{"hunter": {"domain_search": -1}} }, "costs.hunter.domain_search"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "store.dsn"},
		{"unknown store", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"gcs without bucket", func(c *Config) { c.Export.Driver = "gcs" }, "export.bucket"},
		{"local without dir", func(c *Config) { c.Export.Driver = "local" }, "export.dir"},
		{"unknown export", func(c *Config) { c.Export.Driver = "s3" }, "export.driver"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
