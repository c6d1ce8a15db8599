// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	service "github.com/okian/bandscore/internal/app"
	"github.com/okian/bandscore/internal/domain/model"
	"github.com/okian/bandscore/internal/domain/types"
	"github.com/okian/bandscore/pkg/logger"
)

const (
	defaultMaxUploadBytes = 25 << 20
	defaultSyncTimeout    = 60 * time.Second
	defaultMaxListLimit   = 100
	defaultListLimit      = 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Submit(ctx context.Context, sub service.Submission) (service.SubmitResult, error)
	Get(ctx context.Context, id string) (model.Assessment, error)
	List(ctx context.Context, limit int) ([]model.Assessment, int, error)
	Wait(ctx context.Context, id string) (model.Assessment, error)
}

// StatsProvider exposes service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) service.Stats
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	assessmentsHandler *AssessmentsHandler
}

type serverOptions struct {
	maxUploadBytes int64
	syncTimeout    time.Duration
	maxListLimit   int
	log            logger.Logger
}

// Option configures the Server.
type Option func(*serverOptions)

// WithMaxUploadBytes caps the request body of a submission.
func WithMaxUploadBytes(n int64) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxUploadBytes = n
		}
	}
}

// WithSyncTimeout bounds how long wait=true blocks.
func WithSyncTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.syncTimeout = d
		}
	}
}

// WithMaxListLimit caps GET /v1/assessments?limit.
func WithMaxListLimit(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxListLimit = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{
		maxUploadBytes: defaultMaxUploadBytes,
		syncTimeout:    defaultSyncTimeout,
		maxListLimit:   defaultMaxListLimit,
		log:            logger.Named("api"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		assessmentsHandler: NewAssessmentsHandler(deps, o),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /v1/assessments", MetricsMiddleware(s.assessmentsHandler.HandleSubmit, "assessments_submit"))
	mux.HandleFunc("GET /v1/assessments", MetricsMiddleware(s.assessmentsHandler.HandleList, "assessments_list"))
	mux.HandleFunc("GET /v1/assessments/{id}", MetricsMiddleware(s.assessmentsHandler.HandleGet, "assessments_get"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: msg})
}
