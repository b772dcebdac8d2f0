// Package http exposes the audit ledger over a read-only HTTP API.
// No route creates, confirms or appends anything.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ledger"
	"github.com/aretw0/authgate/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// VerifyResponse is the body of GET /ledger/verify.
type VerifyResponse struct {
	OK       bool   `json:"ok"`
	Entries  int    `json:"entries"`
	Tip      string `json:"tip"`
	Index    *int   `json:"index,omitempty"`
	ActionID string `json:"action_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Server serves the audit routes.
type Server struct {
	Audit   ports.AuditReader
	Version string
	logger  *slog.Logger
}

type Option func(*handlerConfig)

type handlerConfig struct {
	metrics http.Handler
	version string
	logger  *slog.Logger
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(c *handlerConfig) {
		c.metrics = h
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(c *handlerConfig) {
		c.version = v
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *handlerConfig) {
		c.logger = logger
	}
}

// NewHandler creates the HTTP handler over audit.
func NewHandler(audit ports.AuditReader, opts ...Option) http.Handler {
	cfg := handlerConfig{version: "dev", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{Audit: audit, Version: cfg.version, logger: cfg.logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/ledger", s.GetLedger)
	r.Get("/ledger/tip", s.GetTip)
	r.Get("/ledger/verify", s.GetVerify)
	r.Get("/ledger/entries/{actionID}", s.GetEntry)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":     "authgate-http",
		"version": s.Version,
		"entries": s.Audit.Len(),
		"sealed":  s.Audit.Sealed(),
	})
}

// GetLedger handles GET /ledger. ?format=yaml selects YAML.
func (s *Server) GetLedger(w http.ResponseWriter, r *http.Request) {
	format := ledger.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = ledger.FormatJSON
	}
	doc := ledger.Document{
		Version: ledger.ExportVersion,
		Sealed:  s.Audit.Sealed(),
		Tip:     s.Audit.Tip(),
		Entries: s.Audit.Entries(),
	}

	switch format {
	case ledger.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case ledger.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}
	if err := ledger.Encode(w, doc, format); err != nil {
		s.logger.Error("ledger export failed", "err", err)
	}
}

// GetTip handles GET /ledger/tip.
func (s *Server) GetTip(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tip":     s.Audit.Tip(),
		"entries": s.Audit.Len(),
	})
}

// GetVerify handles GET /ledger/verify. A violation answers 409.
func (s *Server) GetVerify(w http.ResponseWriter, r *http.Request) {
	resp := VerifyResponse{Entries: s.Audit.Len(), Tip: s.Audit.Tip()}
	err := s.Audit.VerifyChainIntegrity(r.Context())
	if err == nil {
		resp.OK = true
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Error = err.Error()
	var violation *domain.ChainIntegrityError
	if errors.As(err, &violation) {
		resp.Index = &violation.Index
		resp.ActionID = violation.ActionID
	}
	s.logger.Error("ledger verification failed", "err", err)
	s.writeJSON(w, http.StatusConflict, resp)
}

// GetEntry handles GET /ledger/entries/{actionID}.
func (s *Server) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "actionID")
	entry, err := s.Audit.Entry(id)
	if errors.Is(err, domain.ErrEntryNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}
