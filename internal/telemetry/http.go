package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 256

// HTTPReporter posts readings to the collector.
type HTTPReporter struct {
	client *http.Client
	url    string
	apiKey string
}

// NewHTTPReporter creates a reporter for baseURL (e.g. http://192.168.0.103:8000)
// and path. timeout bounds each attempt end to end.
func NewHTTPReporter(baseURL, path, apiKey string, timeout time.Duration) *HTTPReporter {
	if path == "" {
		path = DefaultPath
	}
	return &HTTPReporter{
		client: &http.Client{
			Timeout: timeout,
			// One request per interval; connections are not reused.
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		url:    strings.TrimRight(baseURL, "/") + path,
		apiKey: apiKey,
	}
}

// URL returns the full collector endpoint.
func (r *HTTPReporter) URL() string { return r.url }

// Send posts the reading. Any 2xx status is success.
func (r *HTTPReporter) Send(ctx context.Context, moisturePct float64) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(FormatPayload(moisturePct)))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set(HeaderAPIKey, r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post reading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
}
