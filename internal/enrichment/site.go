package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	// OperationSiteScrape is the cost key of one homepage visit.
	OperationSiteScrape = "site.scrape"

	maxCareersLinks = 5
)

var careersKeywords = []string{
	"careers", "career", "jobs", "join", "recrutement", "carrieres", "carriere", "karriere", "empleo", "trabaja",
}

// socialHosts maps profile hosts to the key stored in LeadRecord.SocialLinks.
var socialHosts = map[string]string{
	"linkedin.com":  "linkedin",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"instagram.com": "instagram",
}

// SiteScrape visits a domain's homepage and collects phone, social and
// careers links. Requests go through the given transport, which is expected
// to enforce robots.txt and host spacing.
type SiteScrape struct {
	transport http.RoundTripper
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewSiteScrape builds the pass.
func NewSiteScrape(transport http.RoundTripper, userAgent string, timeout time.Duration, logger *zap.Logger) *SiteScrape {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteScrape{transport: transport, userAgent: userAgent, timeout: timeout, logger: logger.Named("site_scrape")}
}

// Name implements Pass.
func (s *SiteScrape) Name() string { return "site_scrape" }

// Operation implements Pass.
func (s *SiteScrape) Operation() string { return OperationSiteScrape }

// Enabled implements Pass.
func (s *SiteScrape) Enabled() bool { return s.transport != nil }

// Run implements Pass.
func (s *SiteScrape) Run(ctx context.Context, domain string) (Patch, error) {
	return s.scrape(ctx, "https://"+domain+"/")
}

func (s *SiteScrape) scrape(ctx context.Context, target string) (Patch, error) {
	var (
		mu       sync.Mutex
		patch    = Patch{SocialLinks: map[string]string{}}
		fetchErr error
	)
	c := colly.NewCollector(colly.Async(false), colly.MaxDepth(1), colly.StdlibContext(ctx))
	c.IgnoreRobotsTxt = true
	if s.userAgent != "" {
		c.UserAgent = s.userAgent
	}
	c.SetRequestTimeout(s.timeout)
	c.WithTransport(s.transport)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		classifyLink(&patch, e.Request.URL, e.Attr("href"), e.Text)
	})
	c.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		fetchErr = err
		mu.Unlock()
	})

	if err := c.Visit(target); err != nil {
		return Patch{}, fmt.Errorf("scrape %s: %w", target, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if fetchErr != nil {
		return Patch{}, fmt.Errorf("scrape %s: %w", target, fetchErr)
	}
	if len(patch.SocialLinks) == 0 {
		patch.SocialLinks = nil
	}
	return patch, nil
}

func classifyLink(p *Patch, base *url.URL, href, text string) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "tel:") {
		if p.PhoneNumber == "" {
			p.PhoneNumber = strings.TrimSpace(href[len("tel:"):])
		}
		return
	}
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") {
		return
	}
	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return
	}
	host := strings.TrimPrefix(strings.ToLower(abs.Hostname()), "www.")
	if key, ok := socialHosts[host]; ok {
		if _, seen := p.SocialLinks[key]; !seen && strings.Trim(abs.Path, "/") != "" {
			p.SocialLinks[key] = abs.String()
		}
		return
	}
	if len(p.CareersLinks) >= maxCareersLinks || !looksLikeCareers(abs, text) {
		return
	}
	link := abs.String()
	for _, existing := range p.CareersLinks {
		if existing == link {
			return
		}
	}
	p.CareersLinks = append(p.CareersLinks, link)
}

func looksLikeCareers(u *url.URL, text string) bool {
	haystack := strings.ToLower(u.Hostname() + " " + u.Path + " " + text)
	for _, kw := range careersKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
