// Package httpx holds the outbound HTTP client shared by the model, Jira and
// Slack integrations.
package httpx

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultExternalHTTPTimeout = 90 * time.Second
	userAgent                  = "jiratriage/1.0"
)

var externalHTTPClient = &http.Client{
	Timeout:   defaultExternalHTTPTimeout,
	Transport: &loggingTransport{base: http.DefaultTransport},
}

// ExternalHTTPClient returns the shared client. Its timeout is set once at
// startup by ConfigureExternalHTTPClient.
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

// loggingTransport stamps a User-Agent when the caller did not set one and
// logs every exchange at debug level. URLs are logged without query strings
// since some APIs take keys there.
type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		zap.L().Debug("http request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	zap.L().Debug("http request", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}
