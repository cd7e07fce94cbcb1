package taskstore

import (
	"strings"
	"time"
)

// NewClient picks the HTTP backend when configured, otherwise the
// self-contained in-memory backend for local use.
func NewClient(baseURL, token string, timeout time.Duration) Client {
	if strings.TrimSpace(baseURL) == "" {
		return NewInMemoryClient()
	}
	return NewHTTPClient(baseURL, token, timeout)
}
