// Package api serves the controller's small JSON surface: loop status, the
// effective tuning config and the operator's target clicks.
package api

import (
	"log"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scanroam/internal/config"
	"github.com/banshee-data/scanroam/internal/control"
	"github.com/banshee-data/scanroam/internal/httputil"
	"github.com/banshee-data/scanroam/internal/timeutil"
	"github.com/banshee-data/scanroam/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// LoopStatus is implemented by *control.Loop.
type LoopStatus interface {
	Status() control.Status
}

// HealthStatus is implemented by *health.Reporter.
type HealthStatus interface {
	Healthy() (ok bool, consecutiveFailures int)
}

// Target is an operator click on the scan view, in robot-frame millimetres.
type Target struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version         version.Info   `json:"version"`
	Healthy         bool           `json:"healthy"`
	AcquireStreak   int            `json:"acquire_failure_streak"`
	Uptime          string         `json:"uptime"`
	Loop            control.Status `json:"loop"`
	Sensor          interface{}    `json:"sensor,omitempty"`
	Actuator        interface{}    `json:"actuator,omitempty"`
	TargetsReceived uint64         `json:"targets_received"`
}

// Options configures a Server. Loop is required.
type Options struct {
	Loop   LoopStatus
	Health HealthStatus
	Config *config.TuningConfig
	Clock  timeutil.Clock

	// SensorStats and ActuatorStats, when set, are embedded in the status
	// reply.
	SensorStats   func() interface{}
	ActuatorStats func() interface{}
}

type Server struct {
	opts    Options
	started time.Time
	targets atomic.Uint64
}

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Server{opts: opts, started: opts.Clock.Now()}
}

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

// LoggingMiddleware logs method, path, status and duration of every request.
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

// AttachRoutes registers the /api/ handlers on mux.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/target", s.receiveTarget)
}

// ServeMux returns a mux carrying only the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachRoutes(mux)
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := StatusResponse{
		Version:         version.Get(),
		Healthy:         true,
		Uptime:          s.opts.Clock.Since(s.started).Round(time.Second).String(),
		TargetsReceived: s.targets.Load(),
	}
	if s.opts.Loop != nil {
		resp.Loop = s.opts.Loop.Status()
	}
	if s.opts.Health != nil {
		resp.Healthy, resp.AcquireStreak = s.opts.Health.Healthy()
	}
	if s.opts.SensorStats != nil {
		resp.Sensor = s.opts.SensorStats()
	}
	if s.opts.ActuatorStats != nil {
		resp.Actuator = s.opts.ActuatorStats()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	cfg := s.opts.Config
	if cfg == nil {
		cfg = config.DefaultTuningConfig()
	}
	httputil.WriteJSONOK(w, cfg)
}

// receiveTarget accepts a click on the scan view. The controller is
// reactive and has no goal input, so the target is only logged.
func (s *Server) receiveTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var t Target
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if math.IsNaN(t.X) || math.IsInf(t.X, 0) || math.IsNaN(t.Y) || math.IsInf(t.Y, 0) {
		httputil.BadRequest(w, "target coordinates must be finite")
		return
	}
	n := s.targets.Add(1)
	log.Printf("[api] target #%d clicked at (%.0f, %.0f) mm; ignored by reactive controller", n, t.X, t.Y)
	w.WriteHeader(http.StatusNoContent)
}
