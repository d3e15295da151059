// Package fetcher performs polite HTTP requests: robots.txt compliance,
// per-host spacing and a single Retry-After aware retry on throttling.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/clock/system"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
	"github.com/JakeFAU/lead-enrichment/internal/robots"
)

const (
	defaultUserAgent      = "LeadEnricher/1.0"
	defaultRequestTimeout = 20 * time.Second
	defaultMaxBodyBytes   = 4 << 20
)

// Clock supplies time and interruptible sleeps.
type Clock interface {
	leads.Clock
	Sleeper
}

// Config controls request behavior.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	// MinHostDelay is the spacing floor applied even when robots.txt is silent.
	MinHostDelay time.Duration
	MaxBodyBytes int64
	Retry        RetryPolicy
}

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher is safe for concurrent use. Requests to the same host are
// serialized; requests to different hosts proceed in parallel.
type Fetcher struct {
	cfg    Config
	client *http.Client
	robots *robots.Cache
	clock  Clock
	logger *zap.Logger
	gates  *hostGates
}

// New wires a Fetcher. A nil robots cache disables robots checks; otherwise
// the cache's own robots.txt requests are spaced through the fetcher's host
// gates. A nil client uses NewHTTPClient.
func New(cfg Config, client *http.Client, robotsCache *robots.Cache, clock Clock, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	cfg.Retry = cfg.Retry.withDefaults()
	if client == nil {
		client = NewHTTPClient()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		cfg:    cfg,
		client: client,
		robots: robotsCache,
		clock:  clock,
		logger: logger.Named("fetcher"),
		gates:  newHostGates(),
	}
	if robotsCache != nil {
		robotsCache.SetGate(f)
	}
	return f
}

// NewHTTPClient returns the client shared by the fetcher and the robots cache.
// Timeouts are applied per request through the context.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: newHTTPTransport()}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}

// UserAgent returns the configured agent string.
func (f *Fetcher) UserAgent() string {
	return f.cfg.UserAgent
}

// Fetch performs req. Non-2xx responses come back as *leads.HTTPError; a
// throttled response that is still throttled after the last retry yields an
// error matching leads.ErrRateLimited.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	target, err := url.Parse(req.URL)
	if err != nil || target.Host == "" {
		return Response{}, fmt.Errorf("fetch %q: invalid url", req.URL)
	}
	host := strings.ToLower(target.Host)

	delay, err := f.checkRobots(ctx, target)
	if err != nil {
		return Response{}, err
	}

	gate := f.gates.acquire(host)
	defer gate.release()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
		if err := f.waitTurn(ctx, gate, host, delay); err != nil {
			return Response{}, err
		}

		resp, err := f.do(ctx, req)
		if err != nil {
			metrics.ObserveFetch(host, 0)
			return Response{}, err
		}
		metrics.ObserveFetch(host, resp.StatusCode)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		httpErr := &leads.HTTPError{Status: resp.StatusCode, Body: resp.Body}
		if !f.cfg.Retry.Retryable(resp.StatusCode) {
			return resp, fmt.Errorf("fetch %s: %w", req.URL, httpErr)
		}
		if !f.cfg.Retry.ShouldRetry(resp.StatusCode, attempt) {
			return resp, fmt.Errorf("fetch %s: %w: %w", req.URL, leads.ErrRateLimited, httpErr)
		}

		wait := f.cfg.Retry.Wait(attempt, resp.Header, f.clock.Now())
		f.logger.Debug("throttled; retrying",
			zap.String("host", host),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt),
		)
		metrics.ObserveRateLimitDelay(host, "retry_after", wait)
		if err := f.clock.Sleep(ctx, wait); err != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
	}
}

// WaitHost books a slot on host's gate at the floor spacing and waits for it.
func (f *Fetcher) WaitHost(ctx context.Context, host string) error {
	host = strings.ToLower(host)
	gate := f.gates.acquire(host)
	defer gate.release()
	return f.waitTurn(ctx, gate, host, f.cfg.MinHostDelay)
}

// checkRobots enforces robots.txt for target and returns the host spacing.
func (f *Fetcher) checkRobots(ctx context.Context, target *url.URL) (time.Duration, error) {
	delay := f.cfg.MinHostDelay
	if f.robots == nil || robots.IsRobotsURL(target) {
		return delay, nil
	}
	policy, err := f.robots.Policy(ctx, target.String())
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", target, err)
	}
	path := target.EscapedPath()
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	if !policy.Allowed(path, f.cfg.UserAgent) {
		metrics.ObserveRobotsBlocked(target.Host)
		return 0, fmt.Errorf("fetch %s: %w", target, leads.ErrRobotsDisallowed)
	}
	if crawlDelay := policy.CrawlDelay(f.cfg.UserAgent); crawlDelay > delay {
		delay = crawlDelay
	}
	return delay, nil
}

func (f *Fetcher) waitTurn(ctx context.Context, gate *hostGate, host string, delay time.Duration) error {
	now := f.clock.Now()
	reservation, wait := gate.reserve(now, delay)
	if wait <= 0 {
		return nil
	}
	metrics.ObserveRateLimitDelay(host, "host_spacing", wait)
	if err := f.clock.Sleep(ctx, wait); err != nil {
		gate.cancel(reservation, f.clock.Now())
		return fmt.Errorf("wait for %s: %w", host, err)
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request %s: %w", req.URL, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request %s: %w", req.URL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("Failed to close response body", zap.Error(cerr))
		}
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return Response{}, fmt.Errorf("read %s: %w", req.URL, err)
	}
	return Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		Duration:   time.Since(start),
	}, nil
}
