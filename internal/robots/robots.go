// Package robots fetches, parses and caches robots.txt policies per origin.
package robots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/lead-enrichment/internal/clock/system"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

const (
	defaultTTL      = time.Hour
	defaultTimeout  = 10 * time.Second
	maxRobotsBytes  = 1 << 20
	robotsTxtSuffix = "/robots.txt"
)

// Policy is the parsed robots.txt of one origin. A nil *Policy means no file
// was found: everything is allowed and no crawl delay applies.
type Policy struct {
	data *robotstxt.RobotsData
	// allows and disallows hold the same agent groups as data, each with only
	// one kind of rule rewritten as Disallow lines, so a failed Test means a
	// rule of that kind matched.
	allows    *robotstxt.RobotsData
	disallows *robotstxt.RobotsData
}

// Parse builds a Policy from raw robots.txt content.
func Parse(body []byte) (*Policy, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	sets := splitRules(body)
	allows, err := robotstxt.FromBytes(renderRules(sets, func(s ruleSet) []string { return s.allow }))
	if err != nil {
		return nil, fmt.Errorf("parse robots allow rules: %w", err)
	}
	disallows, err := robotstxt.FromBytes(renderRules(sets, func(s ruleSet) []string { return s.disallow }))
	if err != nil {
		return nil, fmt.Errorf("parse robots disallow rules: %w", err)
	}
	return &Policy{data: data, allows: allows, disallows: disallows}, nil
}

// Allowed reports whether userAgent may fetch path. The most specific
// user-agent group wins over "*". Within that group Allow rules are checked
// before Disallow rules; an empty Disallow allows everything.
func (p *Policy) Allowed(path, userAgent string) bool {
	if p == nil || p.data == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	if !p.allows.TestAgent(path, userAgent) {
		return true
	}
	return p.disallows.TestAgent(path, userAgent)
}

// CrawlDelay returns the delay the matching group asks for, or zero.
func (p *Policy) CrawlDelay(userAgent string) time.Duration {
	if p == nil || p.data == nil {
		return 0
	}
	group := p.data.FindGroup(userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// Gate spaces robots.txt requests with the rest of a host's traffic.
type Gate interface {
	WaitHost(ctx context.Context, host string) error
}

// HTTPDoer is the subset of *http.Client the cache needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls the cache.
type Config struct {
	UserAgent string
	TTL       time.Duration
	Timeout   time.Duration
}

type entry struct {
	policy  *Policy
	expires time.Time
}

// Cache holds one Policy per origin for TTL. Stale entries are refetched on
// the next lookup rather than evicted eagerly.
type Cache struct {
	client  HTTPDoer
	cfg     Config
	clock   leads.Clock
	logger  *zap.Logger
	mu      sync.Mutex
	entries map[string]entry
	gate    Gate
	group   singleflight.Group
}

// NewCache builds a Cache. A nil client uses http.DefaultClient and a nil clock
// uses the system clock.
func NewCache(client HTTPDoer, cfg Config, clock leads.Clock, logger *zap.Logger) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		client:  client,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// Policy returns the cached or freshly fetched policy for rawURL's origin.
// Fetch failures fail open: the result is a nil policy and a logged warning.
// The fetch itself is shared by concurrent callers and outlives any one of
// them; a caller whose ctx ends gets ctx's error instead of a policy.
func (c *Cache) Policy(ctx context.Context, rawURL string) (*Policy, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("robots lookup %q: invalid url", rawURL)
	}
	key := originKey(parsed)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("robots lookup %s: %w", key, err)
	}

	now := c.clock.Now()
	c.mu.Lock()
	cached, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(cached.expires) {
		return cached.policy, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		policy, cacheable := c.fetch(context.WithoutCancel(ctx), parsed)
		if cacheable {
			c.mu.Lock()
			c.entries[key] = entry{policy: policy, expires: c.clock.Now().Add(c.cfg.TTL)}
			c.mu.Unlock()
		}
		return policy, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("robots lookup %s: %w", key, ctx.Err())
	case res := <-ch:
		policy, _ := res.Val.(*Policy)
		return policy, nil
	}
}

// SetGate routes later robots.txt requests through g before they are sent.
func (c *Cache) SetGate(g Gate) {
	c.mu.Lock()
	c.gate = g
	c.mu.Unlock()
}

// IsRobotsURL reports whether u points at a robots.txt file.
func IsRobotsURL(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Path, robotsTxtSuffix)
}

// fetch retrieves and parses robots.txt. The second result is false when the
// outcome says nothing about the host, such as a timeout, and must not be cached.
func (c *Cache) fetch(ctx context.Context, parsed *url.URL) (*Policy, bool) {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: robotsTxtSuffix}
	if robotsURL.Scheme == "" {
		robotsURL.Scheme = "https"
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		if err := gate.WaitHost(ctx, parsed.Host); err != nil {
			c.logger.Warn("robots fetch not scheduled; allowing access", zap.String("host", parsed.Host), zap.Error(err))
			return nil, false
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		c.logger.Warn("robots request build failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return nil, true
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return nil, !isContextErr(ctx, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.logger.Debug("no robots.txt", zap.String("host", parsed.Host), zap.Int("status_code", resp.StatusCode))
		return nil, true
	default:
		c.logger.Warn("robots fetch returned error status; allowing access",
			zap.String("host", parsed.Host),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		c.logger.Warn("robots read failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return nil, !isContextErr(ctx, err)
	}
	policy, err := Parse(body)
	if err != nil {
		c.logger.Warn("robots parse failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return nil, true
	}
	return policy, true
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func originKey(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(u.Host)
}

// ruleSet is one robots.txt group: the agents it names and its path rules.
type ruleSet struct {
	agents   []string
	allow    []string
	disallow []string
	used     bool
}

// splitRules groups Allow and Disallow values by user-agent, starting a new
// group the same way robotstxt does. Groups without any rule or crawl-delay
// are dropped because robotstxt drops them too.
func splitRules(body []byte) []ruleSet {
	var (
		sets []ruleSet
		cur  ruleSet
	)
	flush := func() {
		if cur.used && len(cur.agents) > 0 {
			sets = append(sets, cur)
		}
		cur = ruleSet{}
	}
	for _, line := range bytes.FieldsFunc(body, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if i := bytes.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(string(line), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "user-agent", "useragent":
			if value == "" {
				continue
			}
			if cur.used {
				flush()
			}
			cur.agents = append(cur.agents, strings.ToLower(value))
		case "allow", "disallow":
			if value == "" || len(cur.agents) == 0 {
				continue
			}
			cur.used = true
			if key == "allow" {
				cur.allow = append(cur.allow, value)
			} else {
				cur.disallow = append(cur.disallow, value)
			}
		case "crawl-delay", "crawldelay":
			if len(cur.agents) > 0 {
				cur.used = true
			}
		}
	}
	flush()
	return sets
}

// renderRules writes sets back as robots.txt with the picked rules as
// Disallow lines. Every group keeps a placeholder Crawl-delay so agent
// selection matches the original file.
func renderRules(sets []ruleSet, pick func(ruleSet) []string) []byte {
	var b strings.Builder
	for _, set := range sets {
		for _, agent := range set.agents {
			fmt.Fprintf(&b, "User-agent: %s\n", agent)
		}
		b.WriteString("Crawl-delay: 0\n")
		for _, path := range pick(set) {
			fmt.Fprintf(&b, "Disallow: %s\n", path)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}
