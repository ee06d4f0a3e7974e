// Package telemetry delivers smoothed moisture readings to the remote
// collector over HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collector wire contract. Field name, precision and header name are fixed by
// the collector and must not change.
const (
	DefaultPath  = "/api/umidade/registrar"
	HeaderAPIKey = "X-API-Key"
	ContentType  = "application/json"
)

// ErrStatus is wrapped by Send when the collector answers with a non-2xx code.
var ErrStatus = errors.New("collector returned non-2xx status")

// Reporter sends one reading to the collector.
type Reporter interface {
	// Send delivers moisturePct and returns the HTTP status code.
	// A transport failure returns code 0. Failures are never retried here.
	Send(ctx context.Context, moisturePct float64) (int, error)
}

// FormatPayload returns the exact request body for a reading, e.g.
// {"umidade": 42.50}.
func FormatPayload(moisturePct float64) []byte {
	return []byte(fmt.Sprintf(`{"umidade": %.2f}`, moisturePct))
}

// Attempt records the outcome of one delivery attempt.
type Attempt struct {
	Timestamp time.Time
	Moisture  float64
	Status    int
	Err       error
	Duration  time.Duration
}

// OK reports whether the attempt was delivered.
func (a Attempt) OK() bool { return a.Err == nil }

// ErrString returns the error text, or "" for a successful attempt.
func (a Attempt) ErrString() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}
