package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/soil-controller/internal/keypad"
	"github.com/sweeney/soil-controller/internal/ledger"
	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/status"
)

type fakeHistory struct {
	entries  []ledger.Entry
	err      error
	gotLimit int
}

func (f *fakeHistory) Recent(limit int) ([]ledger.Entry, error) {
	f.gotLimit = limit
	return f.entries, f.err
}

type testEnv struct {
	ts      *httptest.Server
	tracker *status.Tracker
	history *fakeHistory
	keys    *keypad.Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		SamplePeriodMs: 2000,
		LoopDelayMs:    50,
		HeartbeatMs:    900000,
		Broker:         "tcp://192.168.1.200:1883",
		HTTPAddr:       ":8080",
		CollectorURL:   "http://collector:8000",
		Sensor:         "sim",
		Keypad:         "none",
		Pump:           "sim",
	}
	env := &testEnv{
		tracker: status.NewTracker(start, cfg),
		history: &fakeHistory{},
		keys:    keypad.NewQueue(4),
	}
	srv := New(":0", env.tracker, env.history, env.keys)
	env.ts = httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(env.ts.Close)
	return env
}

func defaultSettings() logic.SettingsSnapshot {
	return logic.NewSettings().Snapshot()
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.Update(42.5, true, true, defaultSettings(), logic.Counts{PumpOn: 3, PumpOff: 2, Samples: 40})
	env.tracker.SetMQTTConnected(true)

	var sj status.StatusJSON
	resp := getJSON(t, env.ts.URL+"/index.json", &sj)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NotNil(t, sj.Status.Moisture)
	assert.Equal(t, 42.5, *sj.Status.Moisture)
	assert.Equal(t, "ON", sj.Status.Pump)
	assert.Equal(t, 50.0, sj.Status.Target)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	assert.Equal(t, 3, sj.Status.Counts.PumpOn)
	assert.Equal(t, 40, sj.Status.Counts.Samples)
	assert.Equal(t, int64(2000), sj.Status.Config.SamplePeriodMs)
	assert.Equal(t, "http://collector:8000", sj.Status.Config.CollectorURL)
}

func TestJSONBeforeFirstReading(t *testing.T) {
	env := newTestEnv(t)

	var sj status.StatusJSON
	getJSON(t, env.ts.URL+"/index.json", &sj)

	assert.Nil(t, sj.Status.Moisture)
	assert.Equal(t, "OFF", sj.Status.Pump)
	assert.Equal(t, "MAIN", sj.Status.Screen)
}

func TestJSONNetworkInfo(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	var sj status.StatusJSON
	getJSON(t, env.ts.URL+"/index.json", &sj)

	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "192.168.1.42", sj.Status.Network.IP)
}

func TestHTMLEndpointRoot(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.Update(37.4, true, false, defaultSettings(), logic.Counts{})
	env.tracker.SetDisplay("MAIN", []string{"SOIL IRRIGATION", "[####......] 37%"})
	env.tracker.SetLastReport(status.Report{Timestamp: time.Now(), Moisture: 37.4, Status: 201})

	resp, err := http.Get(env.ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)
	assert.Contains(t, page, "37.4%")
	assert.Contains(t, page, "[####......] 37%")
	assert.Contains(t, page, `name="key" value="#"`)
	assert.Contains(t, page, "(201)")
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}

func TestHTMLWithoutKeypad(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	ts := httptest.NewServer(New(":0", tr, nil, nil).httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), `action="/keypad"`)
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 404, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.Update(50, true, false, defaultSettings(), logic.Counts{})

	var h healthJSON
	resp := getJSON(t, env.ts.URL+"/health", &h)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.HasReading)
}

func TestHistoryDefaultLimit(t *testing.T) {
	env := newTestEnv(t)
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	env.history.entries = []ledger.Entry{
		{ID: "b", Kind: ledger.KindPump, Timestamp: ts.Add(time.Second), Moisture: 30, Target: 50, Pump: "ON"},
		{ID: "a", Kind: ledger.KindReport, Timestamp: ts, Moisture: 30, Status: 201},
	}

	var hj historyJSON
	resp := getJSON(t, env.ts.URL+"/history.json", &hj)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, DefaultHistoryLimit, env.history.gotLimit)
	require.Len(t, hj.Entries, 2)
	assert.Equal(t, "b", hj.Entries[0].ID)
	assert.Equal(t, ledger.KindReport, hj.Entries[1].Kind)
}

func TestHistoryLimit(t *testing.T) {
	env := newTestEnv(t)

	getJSON(t, env.ts.URL+"/history.json?limit=5", nil)
	assert.Equal(t, 5, env.history.gotLimit)

	getJSON(t, env.ts.URL+"/history.json?limit=100000", nil)
	assert.Equal(t, MaxHistoryLimit, env.history.gotLimit)

	for _, bad := range []string{"0", "-1", "abc"} {
		resp := getJSON(t, env.ts.URL+"/history.json?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", bad)
	}
}

func TestHistoryError(t *testing.T) {
	env := newTestEnv(t)
	env.history.err = errors.New("database is locked")

	resp := getJSON(t, env.ts.URL+"/history.json", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHistoryDisabled(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	ts := httptest.NewServer(New(":0", tr, nil, nil).httpServer.Handler)
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/history.json", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func postKeys(t *testing.T, client *http.Client, base string, form url.Values) (*http.Response, keypadJSON) {
	t.Helper()
	resp, err := client.PostForm(base+"/keypad", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	var kj keypadJSON
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&kj))
	}
	return resp, kj
}

func TestKeypadQueuesSymbols(t *testing.T) {
	env := newTestEnv(t)

	resp, kj := postKeys(t, http.DefaultClient, env.ts.URL, url.Values{"key": {"*b8#"}})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 4, kj.Queued)
	var got []logic.Key
	for {
		k, ok := env.keys.Poll()
		if !ok {
			break
		}
		got = append(got, k)
	}
	assert.Equal(t, []logic.Key{logic.KeyStar, logic.KeyB, logic.Key8, logic.KeyHash}, got)
}

func TestKeypadInvalidKey(t *testing.T) {
	env := newTestEnv(t)

	resp, kj := postKeys(t, http.DefaultClient, env.ts.URL, url.Values{"key": {"1x"}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, kj.Queued)
	assert.NotEmpty(t, kj.Error)
}

func TestKeypadMissingKey(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := postKeys(t, http.DefaultClient, env.ts.URL, url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestKeypadQueueFull(t *testing.T) {
	env := newTestEnv(t)

	resp, kj := postKeys(t, http.DefaultClient, env.ts.URL, url.Values{"key": {"123456"}})

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 4, kj.Queued)
	assert.Equal(t, 4, env.keys.Pending())
}

func TestKeypadMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/keypad")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestKeypadRateLimited(t *testing.T) {
	env := newTestEnv(t)

	limited := 0
	for i := 0; i < 2*KeypadBurst; i++ {
		resp, _ := postKeys(t, http.DefaultClient, env.ts.URL, url.Values{"key": {"1"}})
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Positive(t, limited)
}

func TestKeypadRedirect(t *testing.T) {
	env := newTestEnv(t)
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, _ := postKeys(t, client, env.ts.URL, url.Values{"key": {"*"}, "redirect": {"1"}})

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, 1, env.keys.Pending())
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	env := newTestEnv(t)

	var sj1 status.StatusJSON
	getJSON(t, env.ts.URL+"/index.json", &sj1)
	assert.Equal(t, "OFF", sj1.Status.Pump)

	env.tracker.Update(20, true, true, defaultSettings(), logic.Counts{PumpOn: 1})
	env.tracker.SetMQTTConnected(true)

	var sj2 status.StatusJSON
	getJSON(t, env.ts.URL+"/index.json", &sj2)
	assert.Equal(t, "ON", sj2.Status.Pump)
	assert.True(t, sj2.Status.MQTT.Connected)
	assert.Equal(t, 1, sj2.Status.Counts.PumpOn)
}
