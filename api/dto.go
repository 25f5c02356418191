/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Event: Inbound event body types from the chat collaborator
  - *Response: Complex response wrappers

DECIMALS:
  Kilowatt and currency values are rendered as decimal strings ("29.75"),
  never as floats, so clients round-trip them exactly.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/deal-engine/ledger"
	"github.com/warp/deal-engine/stats"
)

// =============================================================================
// INBOUND EVENTS
// =============================================================================

// AppointmentSetEvent is a validated, parsed appointment-set message. The
// chat collaborator has already extracted identity and discarded raw text.
type AppointmentSetEvent struct {
	RepresentativeID   string     `json:"representative_id"`
	RepresentativeName string     `json:"representative_name"`
	Timestamp          *time.Time `json:"timestamp,omitempty"` // default: now
}

// DealCloseEvent is a validated close message.
type DealCloseEvent struct {
	DealID             int64      `json:"deal_id"`
	RepresentativeID   string     `json:"representative_id"`
	RepresentativeName string     `json:"representative_name"`
	SystemSize         float64    `json:"system_size"`
	Timestamp          *time.Time `json:"timestamp,omitempty"`
}

// DealDeleteEvent is a delete request. The collaborator authorizes the
// requester; the engine re-checks as a precondition.
type DealDeleteEvent struct {
	DealID      int64  `json:"deal_id"`
	RequesterID string `json:"requester_id"`
}

// ResetEvent clears the whole ledger.
type ResetEvent struct {
	RequesterID string `json:"requester_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// DealDTO represents a deal in API responses.
type DealDTO struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	SetterID   string `json:"setter_id"`
	SetterName string `json:"setter_name"`
	CloserID   string `json:"closer_id,omitempty"`
	CloserName string `json:"closer_name,omitempty"`
	SystemSize string `json:"system_size,omitempty"`
	Revenue    string `json:"revenue,omitempty"`
	SetAt      string `json:"set_at"`
	ClosedAt   string `json:"closed_at,omitempty"`
}

func toDealDTO(d *ledger.Deal) DealDTO {
	dto := DealDTO{
		ID:         d.ID,
		Status:     string(d.Status),
		SetterID:   string(d.SetterID),
		SetterName: d.SetterName,
		SetAt:      d.SetAt.UTC().Format(time.RFC3339),
	}
	if d.IsClosed() {
		dto.CloserID = string(d.CloserID)
		dto.CloserName = d.CloserName
		dto.SystemSize = d.SystemSize.Value.String()
		dto.Revenue = d.Revenue.Value.String()
		dto.ClosedAt = d.ClosedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toDealDTOs(deals []*ledger.Deal) []DealDTO {
	dtos := make([]DealDTO, 0, len(deals))
	for _, d := range deals {
		dtos = append(dtos, toDealDTO(d))
	}
	return dtos
}

// CloserRowDTO is one leaderboard row for a closer.
type CloserRowDTO struct {
	RepID         string `json:"rep_id"`
	Name          string `json:"name"`
	DealsClosed   int    `json:"deals_closed"`
	KWTotal       string `json:"kw_total"`
	RevenueTotal  string `json:"revenue_total"`
	AvgSystemSize string `json:"avg_system_size"`
}

// SetterRowDTO is one leaderboard row for a setter.
type SetterRowDTO struct {
	RepID              string  `json:"rep_id"`
	Name               string  `json:"name"`
	AppointmentsSet    int     `json:"appointments_set"`
	AppointmentsClosed int     `json:"appointments_closed"`
	CloseRate          float64 `json:"close_rate"`
	KWClosed           string  `json:"kw_closed"`
}

// LeaderboardResponse is the ranked view for one window and role.
type LeaderboardResponse struct {
	Window  string         `json:"window"`
	Role    string         `json:"role"`
	At      string         `json:"at"`
	Closers []CloserRowDTO `json:"closers,omitempty"`
	Setters []SetterRowDTO `json:"setters,omitempty"`
}

func toLeaderboardResponse(lb stats.Leaderboard) LeaderboardResponse {
	resp := LeaderboardResponse{
		Window: string(lb.Window),
		Role:   string(lb.Role),
		At:     lb.At.Format(time.RFC3339),
	}
	for _, row := range lb.Closers {
		resp.Closers = append(resp.Closers, toCloserRowDTO(row))
	}
	for _, row := range lb.Setters {
		resp.Setters = append(resp.Setters, toSetterRowDTO(row))
	}
	return resp
}

func toCloserRowDTO(row stats.CloserRow) CloserRowDTO {
	return CloserRowDTO{
		RepID:         string(row.RepID),
		Name:          row.Name,
		DealsClosed:   row.DealsClosed,
		KWTotal:       row.KWTotal.Value.String(),
		RevenueTotal:  row.RevenueTotal.Value.String(),
		AvgSystemSize: row.AvgSystemSize.Value.String(),
	}
}

func toSetterRowDTO(row stats.SetterRow) SetterRowDTO {
	return SetterRowDTO{
		RepID:              string(row.RepID),
		Name:               row.Name,
		AppointmentsSet:    row.AppointmentsSet,
		AppointmentsClosed: row.AppointmentsClosed,
		CloseRate:          row.CloseRate,
		KWClosed:           row.KWClosed.Value.String(),
	}
}

// SummaryResponse is the company-wide reduction.
type SummaryResponse struct {
	TotalClosed    int    `json:"total_closed"`
	KWTotal        string `json:"kw_total"`
	RevenueTotal   string `json:"revenue_total"`
	ClosedToday    int    `json:"closed_today"`
	ClosedThisWeek int    `json:"closed_this_week"`
}

// RepStatsResponse is one representative's windowed report in both roles.
type RepStatsResponse struct {
	RepID  string       `json:"rep_id"`
	Window string       `json:"window"`
	At     string       `json:"at"`
	Setter SetterRowDTO `json:"setter"`
	Closer CloserRowDTO `json:"closer"`
}

// AuditEntryDTO is one audit trail entry.
type AuditEntryDTO struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	DealID  int64  `json:"deal_id"`
	ActorID string `json:"actor_id"`
	At      string `json:"at"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorResponse is the body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
