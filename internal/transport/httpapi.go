package transport

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 2048

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// readBody reads a bounded response body.
func readBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return strings.TrimSpace(string(body))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// httpSendError converts a non-2xx provider response into a SendError.
func httpSendError(provider string, status int, body string) *SendError {
	return &SendError{
		Provider:   provider,
		Code:       replyCodeForStatus(status),
		HTTPStatus: status,
		Response:   truncate(body, maxErrorBody),
	}
}

// httpTransportError wraps a failure to reach the provider at all.
func httpTransportError(provider string, err error) *SendError {
	return &SendError{Provider: provider, Response: err.Error(), Err: err}
}

func statusError(status int, body string) error {
	return fmt.Errorf("unexpected status %d: %s", status, truncate(body, 256))
}

// endpointOf splits an API base URL into host and port for diagnostics.
func endpointOf(base string) (string, int) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base, 0
	}
	if p, err := strconv.Atoi(u.Port()); err == nil {
		return u.Hostname(), p
	}
	if u.Scheme == "http" {
		return u.Hostname(), 80
	}
	return u.Hostname(), 443
}
