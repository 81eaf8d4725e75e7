// Package handler provides the admin HTTP handlers for dzmesh.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
	"github.com/yndnr/dzmesh-go/internal/telemetry/logger"
)

// Source provides read-only expedition snapshots.
type Source interface {
	Expeditions(ctx context.Context) ([]*domain.Expedition, error)
	Expedition(ctx context.Context, id uint32) (*domain.Expedition, error)
}

// ReadyCheck reports an error while a dependency is unavailable.
type ReadyCheck func(ctx context.Context) error

// Config wires a Handler.
type Config struct {
	// Role is "world" or "zone".
	Role string
	Self protocol.Sender

	Source Source

	// Zones lists the linked zones. Set on the world only.
	Zones func() []protocol.Sender

	// LinkUp reports the world link. Set on zones only.
	LinkUp func() bool

	// Ready maps a dependency name to its check.
	Ready map[string]ReadyCheck

	Logger *slog.Logger
}

// Handler serves the admin API.
//
// @design DS-0301
type Handler struct {
	cfg    Config
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a new Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		cfg:    cfg,
		logger: cfg.Logger,
		mux:    http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleStatus)
	h.mux.HandleFunc("GET /admin/v1/expeditions", h.handleListExpeditions)
	h.mux.HandleFunc("GET /admin/v1/expeditions/{id}", h.handleGetExpedition)
	h.mux.HandleFunc("GET /admin/v1/zones", h.handleListZones)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message))
}

// handleServiceError converts domain errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if code := domain.GetErrorCode(err); code != "" {
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error())
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternal.Code, "internal server error")
}

// errorCodeToHTTPStatus maps DZ-<area>-<nnnn> codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasPrefix(code, "DZ-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.Contains(code, "-409"):
		return http.StatusConflict
	case strings.Contains(code, "-403"):
		return http.StatusForbidden
	case strings.Contains(code, "-400"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
