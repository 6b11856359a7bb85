package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRateLimited matches any provider error that signals throttling.
var ErrRateLimited = errors.New("rate limited")

// APIError is returned when a provider answers with a non-200 status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Is reports 429 responses as ErrRateLimited.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimit returns true if err signals provider-wide throttling.
func IsRateLimit(err error) bool {
	return err != nil && errors.Is(err, ErrRateLimited)
}
