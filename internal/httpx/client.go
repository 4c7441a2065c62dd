// Package httpx holds the HTTP client shared by outbound integrations
// (LLM providers, Slack).
package httpx

import (
	"net/http"
	"time"
)

const DefaultExternalTimeout = 90 * time.Second

// ExternalTimeout converts a configured number of seconds into a timeout,
// falling back to DefaultExternalTimeout for non-positive values.
func ExternalTimeout(timeoutSeconds int) time.Duration {
	if timeoutSeconds > 0 {
		return time.Duration(timeoutSeconds) * time.Second
	}
	return DefaultExternalTimeout
}

// NewExternalClient returns a client whose every request is bounded by the
// configured timeout.
func NewExternalClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: ExternalTimeout(timeoutSeconds)}
}
