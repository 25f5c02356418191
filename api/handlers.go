/*
handlers.go - HTTP handlers for inbound events and reporting queries

PURPOSE:
  The boundary between the chat collaborator and the engine. Handlers
  decode validated events, call the single engine entry point for the
  operation, and map the typed result back onto HTTP. The engine never
  formats human-facing text; the collaborator renders replies from the
  structured payloads returned here.

ERROR MAPPING:
  not found          -> 404
  already closed     -> 409
  invalid size       -> 400
  unauthorized       -> 403
  persistence        -> 503
  undecodable body   -> 400

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Route wiring
  - ledger/errors.go: The error kinds mapped here
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/deal-engine/ledger"
	"github.com/warp/deal-engine/stats"
)

// Handler serves the event and query API on top of the engine.
type Handler struct {
	Ledger          *ledger.Ledger
	LeaderboardSize int
	Log             *slog.Logger
}

// NewHandler creates a handler. leaderboardSize caps ranked rows; log may
// be nil for tests.
func NewHandler(eng *ledger.Ledger, leaderboardSize int, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Ledger: eng, LeaderboardSize: leaderboardSize, Log: log}
}

// =============================================================================
// EVENT ENDPOINTS
// =============================================================================

// AppointmentSet creates a pending deal.
// POST /api/events/appointment-set
func (h *Handler) AppointmentSet(w http.ResponseWriter, r *http.Request) {
	var ev AppointmentSetEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if ev.RepresentativeID == "" {
		writeError(w, http.StatusBadRequest, "representative_id is required", nil)
		return
	}

	at := time.Now().UTC()
	if ev.Timestamp != nil {
		at = ev.Timestamp.UTC()
	}

	deal, err := h.Ledger.CreateAppointment(r.Context(),
		ledger.RepID(ev.RepresentativeID), ev.RepresentativeName, at)
	if err != nil {
		h.writeEngineError(w, "appointment-set", err)
		return
	}

	recordDealCreated()
	h.Log.Info("appointment set",
		"deal_id", deal.ID, "setter", ev.RepresentativeID)
	writeJSON(w, http.StatusCreated, toDealDTO(deal))
}

// DealClose transitions a pending deal to closed.
// POST /api/events/deal-close
func (h *Handler) DealClose(w http.ResponseWriter, r *http.Request) {
	var ev DealCloseEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if ev.RepresentativeID == "" {
		writeError(w, http.StatusBadRequest, "representative_id is required", nil)
		return
	}

	size, err := ledger.SizeFromFloat(ev.SystemSize)
	if err != nil {
		h.writeEngineError(w, "deal-close", err)
		return
	}

	at := time.Now().UTC()
	if ev.Timestamp != nil {
		at = ev.Timestamp.UTC()
	}

	deal, err := h.Ledger.Close(r.Context(), ev.DealID,
		ledger.RepID(ev.RepresentativeID), ev.RepresentativeName, size, at)
	if err != nil {
		h.writeEngineError(w, "deal-close", err)
		return
	}

	recordDealClosed()
	h.Log.Info("deal closed",
		"deal_id", deal.ID, "closer", ev.RepresentativeID, "kw", deal.SystemSize.Value.String())
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

// DealDelete reverses and removes a deal.
// POST /api/events/deal-delete
func (h *Handler) DealDelete(w http.ResponseWriter, r *http.Request) {
	var ev DealDeleteEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	deal, err := h.Ledger.Delete(r.Context(), ev.DealID, ledger.RepID(ev.RequesterID))
	if err != nil {
		h.writeEngineError(w, "deal-delete", err)
		return
	}

	recordDealDeleted()
	h.Log.Info("deal deleted",
		"deal_id", deal.ID, "requester", ev.RequesterID, "was", string(deal.Status))
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

// Reset clears the whole ledger.
// POST /api/admin/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var ev ResetEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.Ledger.Reset(r.Context(), ledger.RepID(ev.RequesterID)); err != nil {
		h.writeEngineError(w, "reset", err)
		return
	}

	h.Log.Warn("ledger reset", "requester", ev.RequesterID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// QUERY ENDPOINTS
// =============================================================================

// GetDeal returns one deal.
// GET /api/deals/{id}
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deal id", err)
		return
	}

	deal, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "get-deal", err)
		return
	}
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

// ListDeals returns the full audit trail, ID ascending.
// GET /api/deals
func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toDealDTOs(h.Ledger.ListAll(r.Context())))
}

// ListPending returns pending deals, SetAt ascending.
// GET /api/deals/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toDealDTOs(h.Ledger.ListPending(r.Context())))
}

// ExportCSV streams the full trail as CSV.
// GET /api/deals/export.csv
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="deals.csv"`)
	if err := stats.WriteCSV(w, h.Ledger.ListAll(r.Context())); err != nil {
		h.Log.Error("csv export failed", "err", err)
	}
}

// Leaderboard returns the ranked view for a window and role.
// GET /api/leaderboard?window=&role=&at=&limit=
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	window, err := stats.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}
	role, err := stats.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid role", err)
		return
	}
	at, err := parseAt(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid at instant", err)
		return
	}

	limit := h.LeaderboardSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
	}

	lb := stats.Aggregate(h.Ledger.ListAll(r.Context()), window, role, at, limit)
	writeJSON(w, http.StatusOK, toLeaderboardResponse(lb))
}

// Summary returns the company-wide totals.
// GET /api/summary?at=
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	at, err := parseAt(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid at instant", err)
		return
	}

	s := stats.Summarize(h.Ledger.ListAll(r.Context()), at)
	writeJSON(w, http.StatusOK, SummaryResponse{
		TotalClosed:    s.TotalClosed,
		KWTotal:        s.KWTotal.Value.String(),
		RevenueTotal:   s.RevenueTotal.Value.String(),
		ClosedToday:    s.ClosedToday,
		ClosedThisWeek: s.ClosedThisWeek,
	})
}

// RepStats returns one representative's windowed report.
// GET /api/reps/{id}/stats?window=&at=
func (h *Handler) RepStats(w http.ResponseWriter, r *http.Request) {
	repID := chi.URLParam(r, "id")

	window, err := stats.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}
	at, err := parseAt(r.URL.Query().Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid at instant", err)
		return
	}

	report := stats.ReportFor(h.Ledger.ListAll(r.Context()), ledger.RepID(repID), window, at)
	writeJSON(w, http.StatusOK, RepStatsResponse{
		RepID:  string(report.RepID),
		Window: string(report.Window),
		At:     report.At.Format(time.RFC3339),
		Setter: toSetterRowDTO(report.Setter),
		Closer: toCloserRowDTO(report.Closer),
	})
}

// Audit returns the audit trail recorded since startup.
// GET /api/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	entries := h.Ledger.AuditTrail(r.Context())
	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, AuditEntryDTO{
			ID:      e.ID,
			Action:  string(e.Action),
			DealID:  e.DealID,
			ActorID: string(e.ActorID),
			At:      e.At.Format(time.RFC3339),
			Detail:  e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseAt resolves the optional evaluation instant, defaulting to now.
func parseAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at.UTC(), nil
	}
	// Date-only form anchors at midnight UTC.
	at, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return at.UTC(), nil
}

func (h *Handler) writeEngineError(w http.ResponseWriter, op string, err error) {
	status, kind := classify(err)
	recordEventError(kind)
	if status >= http.StatusInternalServerError {
		h.Log.Error("operation failed", "op", op, "kind", kind, "err", err)
	} else {
		h.Log.Info("operation rejected", "op", op, "kind", kind, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrAlreadyClosed):
		return http.StatusConflict, "already_closed"
	case errors.Is(err, ledger.ErrInvalidSize):
		return http.StatusBadRequest, "invalid_size"
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, ledger.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_failure"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Error = message + ": " + err.Error()
	}
	writeJSON(w, status, resp)
}
