package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/config"
	"github.com/jo-hoe/travelgallery/internal/jobs"
	"github.com/jo-hoe/travelgallery/internal/metrics"
	"github.com/jo-hoe/travelgallery/internal/processor"
	"github.com/jo-hoe/travelgallery/internal/routes"
	"github.com/jo-hoe/travelgallery/internal/storage"
	"github.com/jo-hoe/travelgallery/internal/store"
)

type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Store    store.Store
	Registry *jobs.Registry
	Queue    *jobs.Queue
	Uploader *storage.Uploader
	Pipeline *processor.Pipeline
	Routes   *routes.Service
	Metrics  *metrics.Metrics
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle(http.MethodGet+" "+common.PathMetrics, svc.Metrics.Handler())

	handle := func(method, pattern string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+pattern, svc.withCommon(h))
	}

	handle(http.MethodPost, common.PathTrips, svc.handleCreateTrip)
	handle(http.MethodGet, common.PathTrips+"/{id}/photos", svc.handleListPhotos)
	handle(http.MethodPost, common.PathTrips+"/{id}/photos", svc.handleUploadPhotos)
	handle(http.MethodPost, common.PathTrips+"/{id}/photos/enrich", svc.handleEnrichTrip)
	handle(http.MethodDelete, common.PathPhotos+"/{id}", svc.handleDeletePhoto)

	handle(http.MethodGet, common.PathJobs+"/{id}", svc.handleGetJob)
	handle(http.MethodGet, common.PathJobs+"/{id}/events", svc.handleJobEvents)
	handle(http.MethodGet, common.PathJobs+"/{id}/ws", svc.handleJobWebSocket)

	handle(http.MethodPost, common.PathTrips+"/{id}/routes", svc.handleCreateRoute)
	handle(http.MethodGet, common.PathRoutes+"/{id}", svc.handleGetRoute)
	handle(http.MethodPost, common.PathRoutes+"/{id}/stops", svc.handleCreateStop)
	handle(http.MethodPut, common.PathRoutes+"/{id}/stops/order", svc.handleReorderStops)
	handle(http.MethodPost, common.PathRoutes+"/{id}/recompute", svc.handleRecompute)
	handle(http.MethodPatch, common.PathStops+"/{id}", svc.handleUpdateStop)
	handle(http.MethodDelete, common.PathStops+"/{id}", svc.handleDeleteStop)

	s := &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(mux, svc.Log), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
	return s
}

func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Enforce API key if configured
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		// Enforce max body size
		max := safeInt64(svc.Cfg.Server.MaxUploadSize)
		if max > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	}
}

// writeError maps domain errors onto HTTP status codes.
func (svc *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var recompute *routes.RecomputeError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, routes.ErrInvalidCoordinates),
		errors.Is(err, routes.ErrInvalidOrder),
		errors.Is(err, routes.ErrTitleRequired),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrQueueNotStarted):
		status = http.StatusServiceUnavailable
	case errors.As(err, &recompute):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		svc.Log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func parseOptionalURL(s string) (*string, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil, nil
	}
	u, err := url.ParseRequestURI(v)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return &v, nil
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	// Fallback to a discard logger if none provided to avoid nil deref in tests or minimal setups.
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Flush and Hijack keep SSE and WebSocket handlers working behind the logger.
func (w *writeWrap) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *writeWrap) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *writeWrap) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func recoveryMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if log != nil {
					log.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
