package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/utterance-capture/internal/capture"
	"github.com/skypro1111/utterance-capture/internal/config"
	"github.com/skypro1111/utterance-capture/internal/logging"
	"github.com/skypro1111/utterance-capture/internal/metrics"
	"github.com/skypro1111/utterance-capture/internal/sink"
)

type fakeRecorder struct {
	mu         sync.Mutex
	running    bool
	started    []capture.Params
	stops      int
	startErr   error
	thresholds []int32
}

func (f *fakeRecorder) StartContext(_ context.Context, p capture.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return capture.ErrAlreadyRunning
	}
	f.running = true
	f.started = append(f.started, p)
	return nil
}

func (f *fakeRecorder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeRecorder) SetAmplitudeThreshold(threshold int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return capture.ErrNotRunning
	}
	if threshold < 0 || threshold > 32767 {
		return fmt.Errorf("amplitude threshold must be between 0 and 32767, got %d", threshold)
	}
	f.thresholds = append(f.thresholds, threshold)
	return nil
}

func (f *fakeRecorder) Status() capture.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := capture.Status{Running: f.running}
	if f.running {
		p := f.started[len(f.started)-1]
		status.SessionID = "session-1"
		status.Params = &p
	}
	return status
}

type fakeLister []sink.SavedFile

func (f fakeLister) Recent() []sink.SavedFile { return f }

func newTestServer(t *testing.T, rec Recorder, lister UtteranceLister) (*HTTPServer, *metrics.Metrics) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cfg := config.Default()
	cfg.Sink.Transcription.APIKey = "secret-key"

	h := NewHTTPServer(cfg.HTTP, logging.Discard(), Deps{
		Config:     &cfg,
		Recorder:   rec,
		Utterances: lister,
		Defaults:   capture.DefaultParams(),
		Metrics:    m,
		Gatherer:   reg,
	})
	return h, m
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStartStop(t *testing.T) {
	rec := &fakeRecorder{}
	h, m := newTestServer(t, rec, nil)

	rr := do(t, h.Handler(), http.MethodPost, "/recording/start", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var status capture.Status
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if !status.Running || status.SessionID == "" {
		t.Errorf("Expected running status, got %+v", status)
	}
	if rec.started[0] != capture.DefaultParams() {
		t.Errorf("Expected default params, got %+v", rec.started[0])
	}

	rr = do(t, h.Handler(), http.MethodPost, "/recording/start", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second start, got %d", rr.Code)
	}

	for i := 0; i < 2; i++ {
		rr = do(t, h.Handler(), http.MethodPost, "/recording/stop", "")
		if rr.Code != http.StatusOK {
			t.Errorf("Stop %d: expected 200, got %d", i, rr.Code)
		}
	}
	if rec.stops != 2 {
		t.Errorf("Expected 2 stops, got %d", rec.stops)
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodPost, "/recording/start", "409")); got != 1 {
		t.Errorf("Expected one 409 request recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPErrors.WithLabelValues(http.MethodPost, "/recording/start", "client_error")); got != 1 {
		t.Errorf("Expected one client error recorded, got %v", got)
	}
}

func TestStartOverrides(t *testing.T) {
	rec := &fakeRecorder{}
	h, _ := newTestServer(t, rec, nil)

	body := `{"sample_rate": 8000, "amplitude_threshold": 1200, "silence_threshold_ms": 700}`
	rr := do(t, h.Handler(), http.MethodPost, "/recording/start", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	p := rec.started[0]
	if p.Format.SampleRate != 8000 || p.AmplitudeThreshold != 1200 || p.SilenceThreshold != 700*time.Millisecond {
		t.Errorf("Overrides not applied: %+v", p)
	}
	if p.Format.Channels != 1 || p.Format.BitsPerSample != 16 {
		t.Errorf("Format defaults not preserved: %+v", p.Format)
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		expected int
	}{
		{name: "malformed body", body: `{"sample_rate":`, expected: http.StatusBadRequest},
		{name: "unknown field", body: `{"rate": 8000}`, expected: http.StatusBadRequest},
		{name: "negative amplitude", body: `{"amplitude_threshold": -1}`, expected: http.StatusBadRequest},
		{name: "zero silence threshold", body: `{"silence_threshold_ms": 0}`, expected: http.StatusBadRequest},
		{name: "source failure", startErr: errors.New("failed to open source: device busy"), expected: http.StatusInternalServerError},
		{name: "closed", startErr: capture.ErrClosed, expected: http.StatusServiceUnavailable},
		{
			name:     "previous session still flushing",
			startErr: fmt.Errorf("previous session still stopping: %w", context.DeadlineExceeded),
			expected: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{startErr: tt.startErr}
			h, _ := newTestServer(t, rec, nil)

			rr := do(t, h.Handler(), http.MethodPost, "/recording/start", tt.body)
			if rr.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, rr.Code, rr.Body.String())
			}
			if len(rec.started) != 0 {
				t.Errorf("Recorder should not have started")
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecorder{}, nil)

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/recording/start"},
		{http.MethodGet, "/recording/stop"},
		{http.MethodPost, "/recording"},
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/utterances"},
		{http.MethodPost, "/recording/threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rr := do(t, h.Handler(), tt.method, tt.target, "")
			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405, got %d", rr.Code)
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	rec := &fakeRecorder{}
	h, _ := newTestServer(t, rec, nil)

	rr := do(t, h.Handler(), http.MethodPut, "/recording/threshold", `{"amplitude_threshold": 1200}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 while idle, got %d", rr.Code)
	}

	do(t, h.Handler(), http.MethodPost, "/recording/start", "")

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{name: "valid", body: `{"amplitude_threshold": 1200}`, expected: http.StatusOK},
		{name: "out of range", body: `{"amplitude_threshold": 40000}`, expected: http.StatusBadRequest},
		{name: "missing field", body: `{}`, expected: http.StatusBadRequest},
		{name: "unknown field", body: `{"threshold": 5}`, expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h.Handler(), http.MethodPut, "/recording/threshold", tt.body)
			if rr.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, rr.Code, rr.Body.String())
			}
		})
	}

	if len(rec.thresholds) != 1 || rec.thresholds[0] != 1200 {
		t.Errorf("Expected one update to 1200, got %v", rec.thresholds)
	}
}

func TestUtterances(t *testing.T) {
	lister := fakeLister{
		{ID: "a", Path: "recordings/audio_1.wav", Bytes: 3244, Duration: 100 * time.Millisecond},
		{ID: "b", Path: "recordings/audio_2.wav", Bytes: 6444, Duration: 200 * time.Millisecond},
	}
	h, _ := newTestServer(t, &fakeRecorder{}, lister)

	rr := do(t, h.Handler(), http.MethodGet, "/utterances", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp struct {
		Total      int              `json:"total"`
		Utterances []sink.SavedFile `json:"utterances"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 2 || resp.Utterances[1].Path != "recordings/audio_2.wav" {
		t.Errorf("Unexpected response %+v", resp)
	}

	// Without a lister the list is empty, not null
	h, _ = newTestServer(t, &fakeRecorder{}, nil)
	rr = do(t, h.Handler(), http.MethodGet, "/utterances", "")
	if !strings.Contains(rr.Body.String(), `"utterances":[]`) {
		t.Errorf("Expected empty list, got %s", rr.Body.String())
	}
}

func TestConfigIsSanitized(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecorder{}, nil)

	rr := do(t, h.Handler(), http.MethodGet, "/config", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret-key") {
		t.Error("Config response exposes the API key")
	}
}

func TestHealthAndRoot(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecorder{}, nil)

	rr := do(t, h.Handler(), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"healthy"`) {
		t.Errorf("Unexpected health response %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h.Handler(), http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "POST /recording/start") {
		t.Errorf("Unexpected root response %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h.Handler(), http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, &fakeRecorder{}, nil)

	do(t, h.Handler(), http.MethodGet, "/health", "")

	rr := do(t, h.Handler(), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "utterance_http_requests_total") {
		t.Errorf("Expected HTTP metrics in output")
	}
}

func TestStartStopListener(t *testing.T) {
	cfg := config.HTTPConfig{Enabled: true, Address: "127.0.0.1", Port: 0}
	h := NewHTTPServer(cfg, logging.Discard(), Deps{Recorder: &fakeRecorder{}, Gatherer: prometheus.NewRegistry()})

	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + h.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	if err := h.Stop(t.Context()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
