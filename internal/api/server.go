package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wicket-data/trajectory.report/internal/httputil"
	"github.com/wicket-data/trajectory.report/internal/monitoring"
	"github.com/wicket-data/trajectory.report/internal/trackdb"
	"github.com/wicket-data/trajectory.report/internal/units"
	"github.com/wicket-data/trajectory.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes stored pipeline runs over HTTP. It reads only; runs
// are written by the CLI pipeline.
type Server struct {
	db    *trackdb.DB
	units string
}

func NewServer(db *trackdb.DB, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = "mps"
	}
	return &Server{db: db, units: speedUnits}
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
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("GET /api/runs/{id}/states", s.showRunStates)
	mux.HandleFunc("GET /api/runs/{id}/decision", s.showRunDecision)
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /healthz", s.healthz)
	return mux
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list runs")
		return
	}
	for i := range runs {
		runs[i].LaunchSpeed = units.ConvertSpeed(runs[i].LaunchSpeed, s.units)
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(r.PathValue("id"))
	if errors.Is(err, trackdb.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load run")
		return
	}
	run.LaunchSpeed = units.ConvertSpeed(run.LaunchSpeed, s.units)
	httputil.WriteJSONOK(w, run)
}

func (s *Server) showRunStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.db.GetWorldStates(r.PathValue("id"))
	if errors.Is(err, trackdb.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load run states")
		return
	}
	httputil.WriteJSONOK(w, states)
}

func (s *Server) showRunDecision(w http.ResponseWriter, r *http.Request) {
	decision, err := s.db.GetDecision(r.PathValue("id"))
	if errors.Is(err, trackdb.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load decision")
		return
	}
	httputil.WriteJSONOK(w, decision)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":   s.units,
		"version": version.Version,
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		httputil.InternalServerError(w, "database unreachable")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}
