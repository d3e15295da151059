package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/agent"
	"github.com/JakeFAU/lead-enrichment/internal/config"
	"github.com/JakeFAU/lead-enrichment/internal/leads"
	"github.com/JakeFAU/lead-enrichment/internal/metrics"
)

const (
	maxDomainsPerRequest = 500
	maxRequestBodyBytes  = 1 << 20
)

// Enricher is the part of agent.Agent the server needs.
type Enricher interface {
	Enrich(ctx context.Context, domains []string, limit int, opts agent.Options) (leads.RunResult, error)
	GetRun(ctx context.Context, runID string) (leads.RunResult, error)
}

// Server wires HTTP handlers to the enrichment agent.
type Server struct {
	router   chi.Router
	enricher Enricher
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(enricher Enricher, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		enricher: enricher,
		logger:   logger.Named("api"),
	}
	timeout := cfg.ServerTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(timeoutMiddleware(timeout))
		r.Post("/enrich", s.enrich)
		r.Get("/runs/{run_id}", s.getRun)
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.enricher == nil {
		writeError(w, http.StatusServiceUnavailable, "enricher not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// enrichRequest mirrors the arguments of Agent.Enrich.
type enrichRequest struct {
	Domains         []string             `json:"domains"`
	Limit           int                  `json:"limit"`
	UsePeopleSearch bool                 `json:"use_people_search"`
	VerifyEmails    bool                 `json:"verify_emails"`
	Title           string               `json:"title"`
	Locations       []string             `json:"locations"`
	Filters         leads.FilterCriteria `json:"filters"`
	BudgetUSD       *float64             `json:"budget_usd"`
}

func (req enrichRequest) validate() error {
	if len(req.Domains) == 0 {
		return errors.New("domains required")
	}
	if len(req.Domains) > maxDomainsPerRequest {
		return errors.New("too many domains")
	}
	if req.Limit < 0 {
		return errors.New("limit must be >= 0")
	}
	if req.BudgetUSD != nil && *req.BudgetUSD < 0 {
		return errors.New("budget_usd must be >= 0")
	}
	return nil
}

func (req enrichRequest) options() agent.Options {
	opts := agent.Options{
		UsePeopleSearch: req.UsePeopleSearch,
		VerifyEmails:    req.VerifyEmails,
		Title:           req.Title,
		Locations:       req.Locations,
		Filters:         req.Filters,
	}
	if req.BudgetUSD != nil {
		limit := leads.USD(*req.BudgetUSD)
		opts.Budget = &limit
	}
	return opts
}

func (s *Server) enrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.enricher.Enrich(r.Context(), req.Domains, req.Limit, req.options())
	if err != nil {
		if errors.Is(err, agent.ErrNoDomains) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("enrich failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enrichment failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.enricher.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, leads.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
