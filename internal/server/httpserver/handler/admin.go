// Package handler provides the admin HTTP handlers for dzmesh.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/infra/buildinfo"
)

// handleStatus handles GET /admin/v1/status/summary.
//
// @design DS-0302
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	exps, err := h.cfg.Source.Expeditions(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	s := StatusSummary{
		Role:        h.cfg.Role,
		ZoneID:      h.cfg.Self.ZoneID,
		InstanceID:  h.cfg.Self.InstanceID,
		Expeditions: len(exps),
		Build:       buildinfo.Get(),
	}
	if h.cfg.Zones != nil {
		n := len(h.cfg.Zones())
		s.Zones = &n
	}
	if h.cfg.LinkUp != nil {
		up := h.cfg.LinkUp()
		s.LinkUp = &up
	}
	h.writeJSON(w, r, http.StatusOK, s)
}

// handleListExpeditions handles GET /admin/v1/expeditions.
//
// @design DS-0302
func (h *Handler) handleListExpeditions(w http.ResponseWriter, r *http.Request) {
	exps, err := h.cfg.Source.Expeditions(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	out := make([]ExpeditionSummary, 0, len(exps))
	for _, e := range exps {
		out = append(out, summarize(e))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"expeditions": out,
		"total":       len(out),
	})
}

// handleGetExpedition handles GET /admin/v1/expeditions/{id}.
//
// @design DS-0302
func (h *Handler) handleGetExpedition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("id must be a positive integer"))
		return
	}

	e, err := h.cfg.Source.Expedition(r.Context(), uint32(id))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, detail(e, time.Now()))
}

// handleListZones handles GET /admin/v1/zones. Only the world has zones.
//
// @design DS-0302
func (h *Handler) handleListZones(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Zones == nil {
		h.writeError(w, r, http.StatusNotFound, domain.ErrInvalidArgument.Code, "zones are listed by the world process")
		return
	}

	zones := h.cfg.Zones()
	out := make([]ZoneView, 0, len(zones))
	for _, z := range zones {
		out = append(out, zoneView(z))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"zones": out,
		"total": len(out),
	})
}
