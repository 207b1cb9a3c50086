package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/utterance-capture/internal/capture"
	"github.com/skypro1111/utterance-capture/internal/config"
	"github.com/skypro1111/utterance-capture/internal/metrics"
	"github.com/skypro1111/utterance-capture/internal/sink"
)

// Recorder is the recording control the server drives
type Recorder interface {
	StartContext(ctx context.Context, p capture.Params) error
	Stop()
	SetAmplitudeThreshold(threshold int32) error
	Status() capture.Status
}

// UtteranceLister lists recently saved utterances
type UtteranceLister interface {
	Recent() []sink.SavedFile
}

// Deps are the components the HTTP API exposes
type Deps struct {
	Config     *config.Config
	Recorder   Recorder
	Utterances UtteranceLister // optional
	Defaults   capture.Params  // merged under every start request
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer // nil uses the default gatherer
}

// StartRequest overrides session parameters for POST /recording/start.
// Omitted fields keep the configured defaults.
type StartRequest struct {
	SampleRate         *int   `json:"sample_rate,omitempty"`
	AmplitudeThreshold *int32 `json:"amplitude_threshold,omitempty"`
	SilenceThresholdMs *int   `json:"silence_threshold_ms,omitempty"`
}

// ThresholdRequest is the body of PUT /recording/threshold
type ThresholdRequest struct {
	AmplitudeThreshold *int32 `json:"amplitude_threshold"`
}

// startWaitTimeout bounds how long a start request waits for a stopped
// session to finish flushing
const startWaitTimeout = 5 * time.Second

// HTTPServer provides HTTP API endpoints for recording control and monitoring
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	deps     Deps
	listener net.Listener

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, deps Deps) *HTTPServer {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		deps:      deps,
		startTime: time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Recording control
	mux.HandleFunc("/recording", h.withMetrics("/recording", h.handleRecording))
	mux.HandleFunc("/recording/start", h.withMetrics("/recording/start", h.handleStart))
	mux.HandleFunc("/recording/stop", h.withMetrics("/recording/stop", h.handleStop))
	mux.HandleFunc("/recording/threshold", h.withMetrics("/recording/threshold", h.handleThreshold))

	mux.HandleFunc("/utterances", h.withMetrics("/utterances", h.handleUtterances))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listen address and serves in the background. Bind errors
// are returned to the caller.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded
func (h *HTTPServer) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return h.server.Addr
	}
	return h.listener.Addr().String()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.deps.Recorder.Status()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "utterance-capture",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"recorder": map[string]interface{}{
				"running":     status.Running,
				"session_id":  status.SessionID,
				"blocks_read": status.BlocksRead,
				"utterances":  status.Utterances,
			},
			"sink": map[string]interface{}{
				"queue_size":        status.QueueSize,
				"queue_capacity":    status.QueueCapacity,
				"delivered":         status.Delivered,
				"delivery_failures": status.DeliveryFails,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleRecording implements GET /recording
func (h *HTTPServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Recorder.Status())
}

// handleStart implements POST /recording/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := h.startParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), startWaitTimeout)
	defer cancel()

	if err := h.deps.Recorder.StartContext(ctx, params); err != nil {
		switch {
		case errors.Is(err, capture.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, capture.ErrClosed),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, context.Canceled):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			h.logger.Error("Failed to start recording", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Recorder.Status())
}

// startParams merges an optional JSON body over the defaults
func (h *HTTPServer) startParams(r *http.Request) (capture.Params, error) {
	params := h.deps.Defaults

	var req StartRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return params, nil
		}
		return params, fmt.Errorf("invalid request body: %w", err)
	}

	if req.SampleRate != nil {
		params.Format.SampleRate = *req.SampleRate
	}
	if req.AmplitudeThreshold != nil {
		params.AmplitudeThreshold = *req.AmplitudeThreshold
	}
	if req.SilenceThresholdMs != nil {
		params.SilenceThreshold = time.Duration(*req.SilenceThresholdMs) * time.Millisecond
	}

	return params, nil
}

// handleStop implements POST /recording/stop. Stopping an idle recorder
// succeeds.
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.deps.Recorder.Stop()

	writeJSON(w, http.StatusOK, h.deps.Recorder.Status())
}

// handleThreshold implements PUT /recording/threshold, retuning the running
// session's amplitude threshold
func (h *HTTPServer) handleThreshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ThresholdRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.AmplitudeThreshold == nil {
		writeError(w, http.StatusBadRequest, errors.New("amplitude_threshold is required"))
		return
	}

	if err := h.deps.Recorder.SetAmplitudeThreshold(*req.AmplitudeThreshold); err != nil {
		if errors.Is(err, capture.ErrNotRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Recorder.Status())
}

// handleUtterances implements GET /utterances
func (h *HTTPServer) handleUtterances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	files := []sink.SavedFile{}
	if h.deps.Utterances != nil {
		files = append(files, h.deps.Utterances.Recent()...)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":      len(files),
		"timestamp":  time.Now().UTC(),
		"utterances": files,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.deps.Config == nil {
		http.Error(w, "Configuration unavailable", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Config.Sanitized())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Utterance Capture Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /recording":           "Recording status",
			"POST /recording/start":    "Start recording",
			"POST /recording/stop":     "Stop recording",
			"PUT /recording/threshold": "Change the amplitude threshold",
			"GET /utterances":          "Recently saved utterances",
			"GET /config":              "Get service configuration",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
