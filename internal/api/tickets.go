package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/timbang-id/timbang/internal/app/weighing"
	"github.com/timbang-id/timbang/internal/domain"
)

// ─── Ticket API ─────────────────────────────────────────────────────────────
// POST  /api/tickets               first weighing
// GET   /api/tickets/pending?q=    tickets awaiting a second weighing
// GET   /api/tickets/{id}          one ticket with its sync history
// PATCH /api/tickets/{id}          edit descriptive fields
// POST  /api/tickets/{id}/finalize second weighing
//
// Omitting "weight" takes the indicator's current reading.

type createTicketRequest struct {
	Kind        string          `json:"kind"`
	Weight      *int64          `json:"weight"`
	NotedWeight int64           `json:"noted_weight"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	domain.Details
}

type finalizeTicketRequest struct {
	Weight        *int64          `json:"weight"`
	RebatePercent decimal.Decimal `json:"rebate_percent"`
}

// ticketView adds the derived figures the operator screen shows.
type ticketView struct {
	*domain.WeighingTicket
	Gross int64              `json:"gross_weight"`
	Total int64              `json:"total_price"`
	Sync  []domain.SyncEvent `json:"sync,omitempty"`
}

func newTicketView(t *domain.WeighingTicket) ticketView {
	return ticketView{WeighingTicket: t, Gross: t.GrossWeight(), Total: t.TotalPrice()}
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	weight, err := s.currentWeight(req.Weight)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.tickets.Create(r.Context(), weighing.CreateInput{
		Kind:        kind,
		Weight:      weight,
		NotedWeight: req.NotedWeight,
		Price:       req.Price,
		Unit:        req.Unit,
		Details:     req.Details,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTicketView(t))
}

func (s *Server) handlePendingTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.tickets.Pending(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []domain.WeighingTicket{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.tickets.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := newTicketView(t)
	if view.Sync, err = s.store.SyncEvents(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var details domain.Details
	if err := decodeBody(w, r, &details); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.tickets.UpdateDetails(r.Context(), id, details)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTicketView(t))
}

func (s *Server) handleFinalizeTicket(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req finalizeTicketRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	weight, err := s.currentWeight(req.Weight)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.tickets.Finalize(r.Context(), weighing.FinalizeInput{
		TicketID:      id,
		Weight:        weight,
		RebatePercent: req.RebatePercent,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTicketView(t))
}
