package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

const (
	// OperationNewsSearch is the cost key of one news query.
	OperationNewsSearch = "news.search"
	// DefaultNewsBaseURL points at a NewsAPI compatible service.
	DefaultNewsBaseURL = "https://newsapi.org"

	newsPageSize = 3
)

// News looks up recent articles mentioning a domain.
type News struct {
	apiKey  string
	baseURL string
	fetcher Fetcher
}

// NewNews builds the pass. An empty apiKey disables it.
func NewNews(apiKey, baseURL string, f Fetcher) *News {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultNewsBaseURL
	}
	return &News{apiKey: strings.TrimSpace(apiKey), baseURL: strings.TrimRight(baseURL, "/"), fetcher: f}
}

// Name implements Pass.
func (n *News) Name() string { return "news" }

// Operation implements Pass.
func (n *News) Operation() string { return OperationNewsSearch }

// Enabled implements Pass.
func (n *News) Enabled() bool { return n.apiKey != "" && n.fetcher != nil }

// Run implements Pass.
func (n *News) Run(ctx context.Context, domain string) (Patch, error) {
	params := url.Values{}
	params.Set("q", strconv.Quote(domain))
	params.Set("pageSize", strconv.Itoa(newsPageSize))
	params.Set("sortBy", "publishedAt")
	resp, err := n.fetcher.Fetch(ctx, fetcher.Request{
		Method: http.MethodGet,
		URL:    n.baseURL + "/v2/everything?" + params.Encode(),
		Header: http.Header{"X-Api-Key": {n.apiKey}, "Accept": {"application/json"}},
	})
	if err != nil {
		return Patch{}, err
	}

	var payload struct {
		Articles []struct {
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			Title       string `json:"title"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return Patch{}, fmt.Errorf("news for %s: %w: %w", domain, leads.ErrMalformedResponse, err)
	}

	var patch Patch
	for _, a := range payload.Articles {
		if a.Title == "" || a.URL == "" {
			continue
		}
		item := leads.NewsItem{Title: strings.TrimSpace(a.Title), URL: a.URL, Source: a.Source.Name}
		if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.PublishedAt = ts.UTC()
		}
		patch.News = append(patch.News, item)
		if len(patch.News) == newsPageSize {
			break
		}
	}
	return patch, nil
}
