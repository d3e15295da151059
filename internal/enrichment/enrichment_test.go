package enrichment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/budget"
	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

type stubPass struct {
	op      string
	patches map[string]Patch
	fail    map[string]bool
	calls   []string
}

func (s *stubPass) Name() string      { return "stub" }
func (s *stubPass) Operation() string { return s.op }
func (s *stubPass) Enabled() bool     { return true }
func (s *stubPass) Run(_ context.Context, domain string) (Patch, error) {
	s.calls = append(s.calls, domain)
	if s.fail[domain] {
		return Patch{}, errors.New("boom")
	}
	return s.patches[domain], nil
}

func leadAt(domain, email, phone string) leads.LeadRecord {
	return leads.NewLeadRecord(leads.RawContactCandidate{Domain: domain, Email: email, PhoneNumber: phone})
}

func TestRunnerFillsOnlyEmptyFields(t *testing.T) {
	t.Parallel()

	pass := &stubPass{patches: map[string]Patch{
		"a.com": {
			PhoneNumber:  "+33100000000",
			CareersLinks: []string{"https://a.com/careers"},
			SocialLinks:  map[string]string{"linkedin": "https://linkedin.com/company/a", "twitter": "https://x.com/a"},
		},
	}}
	in := []leads.LeadRecord{
		leadAt("a.com", "x@a.com", ""),
		leadAt("a.com", "y@a.com", "+33999999999"),
	}
	in[1].SocialLinks = map[string]string{"twitter": "https://x.com/keep"}

	out := NewRunner(5, nil, zap.NewNop()).Apply(context.Background(), in, pass)
	require.Equal(t, "+33100000000", out[0].PhoneNumber)
	require.Equal(t, "+33999999999", out[1].PhoneNumber)
	require.Equal(t, []string{"https://a.com/careers"}, out[1].CareersLinks)
	require.Equal(t, "https://x.com/keep", out[1].SocialLinks["twitter"])
	require.Equal(t, "https://linkedin.com/company/a", out[1].SocialLinks["linkedin"])
	require.Empty(t, in[0].PhoneNumber, "input is not mutated")
}

func TestRunnerCapsDomainsAndSwallowsFailures(t *testing.T) {
	t.Parallel()

	pass := &stubPass{
		patches: map[string]Patch{"c.com": {Jobs: []leads.JobPosting{{Title: "Engineer"}}}},
		fail:    map[string]bool{"a.com": true},
	}
	in := []leads.LeadRecord{
		leadAt("a.com", "1@a.com", ""),
		leadAt("b.com", "1@b.com", ""),
		leadAt("a.com", "2@a.com", ""),
		leadAt("c.com", "1@c.com", ""),
		leadAt("d.com", "1@d.com", ""),
	}
	out := NewRunner(3, nil, zap.NewNop()).Apply(context.Background(), in, pass)
	require.Equal(t, []string{"a.com", "b.com", "c.com"}, pass.calls)
	require.Len(t, out[3].CompanyJobs, 1)
	require.Empty(t, out[4].CompanyJobs)
}

func TestRunnerStopsPassWhenBudgetRunsOut(t *testing.T) {
	t.Parallel()

	tracker := budget.New(leads.USD(0.02), leads.ProviderUnitCost{OperationNewsSearch: leads.USD(0.01)}, zap.NewNop())
	pass := &stubPass{op: OperationNewsSearch}
	in := []leads.LeadRecord{leadAt("a.com", "1@a.com", ""), leadAt("b.com", "1@b.com", ""), leadAt("c.com", "1@c.com", "")}

	NewRunner(5, tracker, zap.NewNop()).Apply(context.Background(), in, pass)
	require.Equal(t, []string{"a.com", "b.com"}, pass.calls)
	require.Zero(t, tracker.Remaining())
}

func newFetcher(srv *httptest.Server) *fetcher.Fetcher {
	return fetcher.New(fetcher.Config{UserAgent: "LeadEnricher/1.0"}, srv.Client(), nil, nil, zap.NewNop())
}

func TestSiteScrapeCollectsLinks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body>
<a href="tel:+33 1 23 45 67 89">Call</a>
<a href="https://www.linkedin.com/company/acme/">LinkedIn</a>
<a href="https://x.com/acme">X</a>
<a href="https://twitter.com/">Twitter home</a>
<a href="/carrieres">Nous rejoindre</a>
<a href="/about">About</a>
<a href="mailto:hello@acme.fr">Mail</a>
</body></html>`)
	}))
	defer srv.Close()

	f := newFetcher(srv)
	s := NewSiteScrape(f.Transport(), f.UserAgent(), 0, zap.NewNop())
	patch, err := s.scrape(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Equal(t, "+33 1 23 45 67 89", patch.PhoneNumber)
	require.Equal(t, "https://www.linkedin.com/company/acme/", patch.SocialLinks["linkedin"])
	require.Equal(t, "https://x.com/acme", patch.SocialLinks["twitter"])
	require.Equal(t, []string{srv.URL + "/carrieres"}, patch.CareersLinks)
}

func TestSiteScrapeReportsHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newFetcher(srv)
	_, err := NewSiteScrape(f.Transport(), "", 0, zap.NewNop()).scrape(context.Background(), srv.URL+"/")
	require.Error(t, err)
}

func TestNewsPass(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/everything", r.URL.Path)
		require.Equal(t, `"acme.fr"`, r.URL.Query().Get("q"))
		require.Equal(t, "news-key", r.Header.Get("X-Api-Key"))
		_, _ = io.WriteString(w, `{"status":"ok","articles":[
{"source":{"name":"Les Echos"},"title":"Acme lève 10M€","url":"https://lesechos.fr/a","publishedAt":"2026-03-01T08:00:00Z"},
{"title":"","url":"https://skip"}]}`)
	}))
	defer srv.Close()

	n := NewNews("news-key", srv.URL, newFetcher(srv))
	require.True(t, n.Enabled())
	patch, err := n.Run(context.Background(), "acme.fr")
	require.NoError(t, err)
	require.Len(t, patch.News, 1)
	require.Equal(t, "Les Echos", patch.News[0].Source)
	require.Equal(t, 2026, patch.News[0].PublishedAt.Year())

	require.False(t, NewNews("", srv.URL, newFetcher(srv)).Enabled())
}

func TestJobsPass(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/v1/boards/acme/jobs" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"jobs":[{"title":"Backend Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/1","location":{"name":"Paris"}}]}`)
	}))
	defer srv.Close()

	j := NewJobs(srv.URL, newFetcher(srv))
	patch, err := j.Run(context.Background(), "acme.fr")
	require.NoError(t, err)
	require.Equal(t, []leads.JobPosting{{Title: "Backend Engineer", URL: "https://boards.greenhouse.io/acme/jobs/1", Location: "Paris"}}, patch.Jobs)

	_, err = j.Run(context.Background(), "other.io")
	require.Equal(t, http.StatusNotFound, leads.StatusOf(err))
	require.EqualValues(t, 2, hits.Load())
}
