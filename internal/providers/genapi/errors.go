package genapi

import (
	"errors"
	"fmt"
	"regexp"
)

// RequestError is returned for any transport failure or non-2xx response.
// StatusCode is zero when no response was received.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("genapi: %s %s: http %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("genapi: %s %s: %s", e.Method, e.URL, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

var invalidEndpointRegexp = regexp.MustCompile(`(?i)invalid\s+(url|endpoint|path)`)

// IsInvalidEndpoint reports whether the server rejected the endpoint itself,
// which makes the request eligible for a retry against an alternate path.
func IsInvalidEndpoint(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return invalidEndpointRegexp.MatchString(reqErr.Message)
}
