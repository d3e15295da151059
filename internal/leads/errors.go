package leads

import (
	"errors"
	"fmt"
)

// Error taxonomy. None of these abort a run except ErrBudgetExhausted, which
// ends it early with partial results.
var (
	ErrRobotsDisallowed  = errors.New("request disallowed by robots policy")
	ErrRateLimited       = errors.New("rate limited by remote host")
	ErrProviderDisabled  = errors.New("provider disabled by circuit breaker")
	ErrBudgetExhausted   = errors.New("budget exhausted")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrRunNotFound       = errors.New("run not found")
)

// HTTPError reports a non-2xx response.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

// StatusOf extracts the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
