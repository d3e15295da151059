package fetcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

// Transport returns a RoundTripper that sends every request through Fetch,
// so scrapers built on other HTTP stacks still obey robots and host spacing.
// Non-2xx responses are handed back as responses rather than errors.
func (f *Fetcher) Transport() http.RoundTripper {
	return &fetchTransport{fetcher: f}
}

type fetchTransport struct {
	fetcher *Fetcher
}

func (t *fetchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("fetch transport received nil request")
	}
	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		closeErr := req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close request body: %w", closeErr)
		}
		body = data
	}

	resp, err := t.fetcher.Fetch(req.Context(), Request{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header,
		Body:   body,
	})
	if err != nil {
		var httpErr *leads.HTTPError
		if !errors.As(err, &httpErr) {
			return nil, err
		}
		resp.StatusCode = httpErr.Status
		resp.Body = httpErr.Body
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode:    resp.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        headerOrEmpty(resp.Header),
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}

func headerOrEmpty(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h
}
