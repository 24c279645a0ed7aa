package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/metrics"
	"github.com/JakeFAU/niw-crawler/internal/report"
)

// Reporter computes the analysis results served by the API.
type Reporter interface {
	Analyze(ctx context.Context, center crawler.ServiceCenter) (analysis.Table, error)
	PercentileOfDaysElapsed(ctx context.Context, center crawler.ServiceCenter, applicationDate time.Time) (analysis.Percentile, error)
}

// Server wires HTTP handlers to the analyzer.
type Server struct {
	router          chi.Router
	reporter        Reporter
	applicationDate time.Time
	logger          *zap.Logger
}

// NewServer constructs a Server with middleware and routes. applicationDate
// is used when a percentile request omits one.
func NewServer(reporter Reporter, applicationDate time.Time, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		reporter:        reporter,
		applicationDate: applicationDate,
		logger:          logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/distribution/{center}", s.getDistribution)
		r.Get("/percentile/{center}", s.getPercentile)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getDistribution(w http.ResponseWriter, r *http.Request) {
	center, ok := centerParam(w, r)
	if !ok {
		return
	}
	table, err := s.reporter.Analyze(r.Context(), center)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, table)
	case "svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		s.write(w, report.SVG(table))
	case "html":
		page, err := report.HTML(table, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "render failed")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		s.write(w, page)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

func (s *Server) getPercentile(w http.ResponseWriter, r *http.Request) {
	center, ok := centerParam(w, r)
	if !ok {
		return
	}
	appDate := s.applicationDate
	if raw := r.URL.Query().Get("application_date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "application_date must be YYYY-MM-DD")
			return
		}
		appDate = parsed
	}
	res, err := s.reporter.PercentileOfDaysElapsed(r.Context(), center, appDate)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func centerParam(w http.ResponseWriter, r *http.Request) (crawler.ServiceCenter, bool) {
	center, ok := crawler.ParseServiceCenter(chi.URLParam(r, "center"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown service center")
		return crawler.ServiceCenterNone, false
	}
	return center, true
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	if errors.Is(err, analysis.ErrNoSamples) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("Analysis failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "analysis failed")
}

func (s *Server) write(w http.ResponseWriter, body string) {
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Warn("Write response failed", zap.Error(err))
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("Request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
