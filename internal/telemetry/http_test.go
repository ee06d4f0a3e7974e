package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPayload(t *testing.T) {
	assert.Equal(t, `{"umidade": 42.50}`, string(FormatPayload(42.5)))
	assert.Equal(t, `{"umidade": 0.00}`, string(FormatPayload(0)))
	assert.Equal(t, `{"umidade": 100.00}`, string(FormatPayload(100)))
	assert.Equal(t, `{"umidade": 33.33}`, string(FormatPayload(100.0/3)))
}

func TestSendWireContract(t *testing.T) {
	var gotMethod, gotPath, gotKey, gotType, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	r := NewHTTPReporter(ts.URL+"/", "", "secret-123", time.Second)
	code, err := r.Send(context.Background(), 61.237)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/umidade/registrar", gotPath)
	assert.Equal(t, "secret-123", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"umidade": 61.24}`, gotBody)
	assert.Equal(t, ts.URL+"/api/umidade/registrar", r.URL())
}

func TestSendAnyTwoHundredIsSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	code, err := NewHTTPReporter(ts.URL, DefaultPath, "k", time.Second).Send(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, code)
}

func TestSendNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	code, err := NewHTTPReporter(ts.URL, DefaultPath, "wrong", time.Second).Send(context.Background(), 10)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestSendTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	code, err := NewHTTPReporter(url, DefaultPath, "k", time.Second).Send(context.Background(), 10)
	assert.Equal(t, 0, code)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStatus)
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	start := time.Now()
	_, err := NewHTTPReporter(ts.URL, DefaultPath, "k", 50*time.Millisecond).Send(context.Background(), 10)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFakeReporter(t *testing.T) {
	f := NewFakeReporter()
	code, err := f.Send(context.Background(), 12.5)
	require.NoError(t, err)
	assert.Equal(t, 200, code)
	assert.Equal(t, []float64{12.5}, f.Sent)
	assert.Equal(t, `{"umidade": 12.50}`, string(f.Payloads[0]))
}
