package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/robots"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

func newTestFetcher(t *testing.T, srv *httptest.Server, clock *fakeClock, cfg Config) *Fetcher {
	t.Helper()
	cache := robots.NewCache(srv.Client(), robots.Config{UserAgent: "LeadEnricher/1.0"}, clock, zap.NewNop())
	cfg.UserAgent = "LeadEnricher/1.0"
	return New(cfg, srv.Client(), cache, clock, zap.NewNop())
}

func TestFetchHonorsCrawlDelayBetweenRequests(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = io.WriteString(w, "User-agent: *\nCrawl-delay: 2\n")
			return
		}
		hits.Add(1)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	clock := newFakeClock()
	f := newTestFetcher(t, srv, clock, Config{MinHostDelay: 500 * time.Millisecond})

	// The robots.txt request takes the host's first slot.
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/a"})
	require.NoError(t, err)
	require.InDelta(t, float64(2*time.Second), float64(clock.total()), float64(time.Millisecond))

	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/b"})
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
	require.EqualValues(t, 2, hits.Load())
	require.InDelta(t, float64(4*time.Second), float64(clock.total()), float64(time.Millisecond))
}

func TestFetchAppliesMinHostDelayWithoutRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := newFakeClock()
	f := newTestFetcher(t, srv, clock, Config{MinHostDelay: 300 * time.Millisecond})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/page"})
		require.NoError(t, err)
	}
	require.InDelta(t, float64(900*time.Millisecond), float64(clock.total()), float64(time.Millisecond))
}

func TestFetchRetriesOnceAfterRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	clock := newFakeClock()
	f := newTestFetcher(t, srv, clock, Config{})

	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/api"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, hits.Load())
	require.Equal(t, []time.Duration{time.Second}, clock.sleeps)
}

func TestFetchReturnsRateLimitedAfterSecond429(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	clock := newFakeClock()
	f := newTestFetcher(t, srv, clock, Config{})

	_, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/api"})
	require.ErrorIs(t, err, leads.ErrRateLimited)
	require.Equal(t, http.StatusTooManyRequests, leads.StatusOf(err))
	require.EqualValues(t, 2, hits.Load())
	require.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)
}

func TestFetchRefusesDisallowedPath(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = io.WriteString(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		hits.Add(1)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, newFakeClock(), Config{})
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/private/team"})
	require.ErrorIs(t, err, leads.ErrRobotsDisallowed)
	require.Zero(t, hits.Load())
}

func TestFetchWrapsNon2xxInHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errors":[{"id":"wrong_params"}]}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, newFakeClock(), Config{})
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/v2/domain-search"})
	require.Error(t, err)

	var httpErr *leads.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
	require.Contains(t, string(httpErr.Body), "wrong_params")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFetchSendsMethodHeadersAndBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.Equal(t, "LeadEnricher/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, newFakeClock(), Config{})
	resp, err := f.Fetch(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/search",
		Header: http.Header{"X-Api-Key": {"secret"}},
		Body:   []byte(`{"q":1}`),
	})
	require.NoError(t, err)
	require.Equal(t, `{"q":1}`, string(resp.Body))
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := New(Config{}, srv.Client(), nil, newFakeClock(), zap.NewNop())
	_, err := f.Fetch(ctx, Request{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func TestTransportReturnsErrorStatusesAsResponses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, newFakeClock(), Config{})
	client := &http.Client{Transport: f.Transport()}

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "<html></html>", string(body))

	resp, err = client.Get(srv.URL + "/missing")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
