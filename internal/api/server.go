// Package api serves the station status, operator actions, the audit
// journal and the rendered operator display over HTTP.
package api

import (
	"context"
	"image"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/db"
	"github.com/cbf-labs/anacase/internal/metrics"
	"github.com/cbf-labs/anacase/internal/overlay"
	"github.com/cbf-labs/anacase/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Engine is the part of counting.Engine the API drives.
type Engine interface {
	Snapshot(now time.Time) counting.Snapshot
	Acknowledge(now time.Time) bool
	Reset(now time.Time)
	SetMode(counting.Mode) error
	ToggleStats() bool
	WithFrozenSnapshot(fn func(any)) bool
	Beam() counting.Beam
	Subscribe() (string, <-chan counting.Event)
	Unsubscribe(id string)
}

// Journal reads the audit journal.
type Journal interface {
	RecentEvents(limit int, kind counting.EventKind) ([]db.EventRecord, error)
	CrossingBuckets(since, until time.Time, width time.Duration) ([]db.Bucket, error)
}

// LiveFrames supplies the latest camera frame for the display.
type LiveFrames interface {
	WithLiveFrame(fn func(image.Image)) bool
}

type Server struct {
	engine   Engine
	journal  Journal
	frames   LiveFrames
	renderer *overlay.Renderer
	metrics  *metrics.Metrics
	clock    timeutil.Clock

	// streamPing is the keep-alive period of the event stream.
	streamPing time.Duration
}

// NewServer builds a server over engine. journal may be nil, in which case
// the journal routes answer 503.
func NewServer(engine Engine, journal Journal, renderer *overlay.Renderer) *Server {
	if renderer == nil {
		renderer = overlay.New("")
	}
	return &Server{
		engine:     engine,
		journal:    journal,
		renderer:   renderer,
		clock:      timeutil.RealClock{},
		streamPing: 15 * time.Second,
	}
}

// SetLiveFrames attaches the source of live frames for /api/overlay.png.
func (s *Server) SetLiveFrames(f LiveFrames) { s.frames = f }

// SetMetrics mounts m at /metrics.
func (s *Server) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetClock replaces the clock used to time operator actions.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/acknowledge", s.acknowledge)
	mux.HandleFunc("/api/reset", s.resetCounter)
	mux.HandleFunc("/api/mode", s.setMode)
	mux.HandleFunc("/api/stats/toggle", s.toggleStats)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/events/stream", s.streamEvents)
	mux.HandleFunc("/api/overlay.png", s.showOverlay)
	mux.HandleFunc("/api/stats/histogram.png", s.showHistogram)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start serves ServeMux on listen until ctx is done.
func (s *Server) Start(ctx context.Context, listen string, handler http.Handler) error {
	server := &http.Server{
		Addr:              listen,
		Handler:           LoggingMiddleware(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}
