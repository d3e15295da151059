package leads

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeDomain reduces a URL or hostname to a bare lower-case host without
// scheme, port, path or leading "www.". It returns "" when nothing usable remains.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "www."), ".")
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// DomainsFromURLs derives one domain per input and drops invalid entries and
// duplicates, preserving first-seen order.
func DomainsFromURLs(inputs []string) []string {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		d := NormalizeDomain(in)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
