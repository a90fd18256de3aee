// Package http implements the HTTP/WebSocket front end of podcastd.
//
// It exposes the job API (submit, status, download, artifact lookup), the
// voice roster listing, pixel avatars, a WebSocket stream of job status for
// a client, and the Swagger UI for the generated OpenAPI document.
package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/podcastd/internal/config"
	"github.com/nadzzz/podcastd/internal/storage"
	"github.com/nadzzz/podcastd/internal/transport"
	"github.com/nadzzz/podcastd/internal/tts"
)

// Options configures the HTTP transport.
type Options struct {
	Port      int
	MaxFormMB int64
	Auth      config.AuthConfig

	// ProviderDir holds the provider configs served by /get-voices.
	ProviderDir string
}

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	opts     Options
	jobs     transport.Jobs
	store    storage.Store
	registry *tts.Registry
	upgrader websocket.Upgrader
	now      func() time.Time
	server   *http.Server
}

// New creates a new HTTP transport.
func New(opts Options, jobs transport.Jobs, store storage.Store, registry *tts.Registry) *Transport {
	if opts.MaxFormMB <= 0 {
		opts.MaxFormMB = 32
	}
	return &Transport{
		opts:     opts,
		jobs:     jobs,
		store:    store,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the API routes.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", t.handleRoot)

	mux.HandleFunc("POST /generate-podcast", t.signed(t.handleGenerate))
	mux.HandleFunc("GET /podcast-status", t.signed(t.handleStatus))
	mux.HandleFunc("GET /ws/podcast-status", t.signed(t.handleStatusStream))

	mux.HandleFunc("GET /download-podcast", t.handleDownload)
	mux.HandleFunc("GET /download-podcast/{$}", t.handleDownload)
	mux.HandleFunc("GET /get-audio-info", t.handleAudioInfo)
	mux.HandleFunc("GET /get-audio-info/{$}", t.handleAudioInfo)
	mux.HandleFunc("GET /get-voices", t.handleVoices)
	mux.HandleFunc("GET /avatar/{username}", t.handleAvatar)

	// Swagger UI serves the registered OpenAPI document.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return logRequests(mux)
}

// Listen starts the HTTP server. It blocks until the context is cancelled.
func (t *Transport) Listen(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.opts.Port),
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// WebSocket loops end with the transport.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	slog.Info("http transport listening", "port", t.opts.Port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack is required by the WebSocket upgrade.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.code, "duration", time.Since(start))
	})
}

type errorResponse struct {
	Detail string `json:"detail" example:"File not found."`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}
