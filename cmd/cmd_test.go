package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/agent"
	"github.com/JakeFAU/lead-enrichment/internal/api"
	"github.com/JakeFAU/lead-enrichment/internal/config"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

type fakeEnricher struct {
	domains []string
	limit   int
	opts    agent.Options
}

func (f *fakeEnricher) Enrich(_ context.Context, domains []string, limit int, opts agent.Options) (leads.RunResult, error) {
	f.domains, f.limit, f.opts = domains, limit, opts
	return leads.RunResult{ID: "run-1", Domains: domains, Leads: []leads.LeadRecord{}, Usage: leads.NewUsageStats()}, nil
}

func (f *fakeEnricher) GetRun(context.Context, string) (leads.RunResult, error) {
	return leads.RunResult{}, leads.ErrRunNotFound
}

type fakeApp struct {
	enricher *fakeEnricher
	closed   bool
}

func (a *fakeApp) Enricher() api.Enricher { return a.enricher }
func (a *fakeApp) Logger() *zap.Logger    { return zap.NewNop() }
func (a *fakeApp) Config() config.Config  { return config.Config{} }
func (a *fakeApp) Close(context.Context)  { a.closed = true }

func withFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	fake := &fakeApp{enricher: &fakeEnricher{}}
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = orig })
	return fake
}

func TestEnrichCommandPrintsResult(t *testing.T) {
	fake := withFakeApp(t)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"enrich", "--domains", "acme.fr,globex.com", "--title", "CEO,CFO",
		"--location", "France", "--limit", "5", "--people-search", "--budget", "0.5", "initech.com"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var result leads.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Equal(t, "run-1", result.ID)

	got := fake.enricher
	require.Equal(t, []string{"acme.fr", "globex.com", "initech.com"}, got.domains)
	require.Equal(t, 5, got.limit)
	require.Equal(t, "CEO,CFO", got.opts.Title)
	require.Equal(t, []string{"France"}, got.opts.Locations)
	require.True(t, got.opts.UsePeopleSearch)
	require.False(t, got.opts.VerifyEmails)
	require.Equal(t, leads.USD(0.5), *got.opts.Budget)
	require.True(t, fake.closed)
}

func TestEnrichCommandRequiresDomains(t *testing.T) {
	withFakeApp(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"enrich"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestEnrichCommandDefaultBudget(t *testing.T) {
	fake := withFakeApp(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"enrich", "acme.io"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Nil(t, fake.enricher.opts.Budget)
}

func TestAppFactoryErrorStopsCommand(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("no config") }
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"enrich", "acme.io"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "no config")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	fake := &fakeApp{enricher: &fakeEnricher{}}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, fake, port) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", port))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
