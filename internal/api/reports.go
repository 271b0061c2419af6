package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/timbang-id/timbang/internal/domain"
)

// ─── History & Reports API ──────────────────────────────────────────────────
// GET /api/history?from=&to=&q=&kind=&status=&page=&page_size=
// GET /api/history/summary  (same filter, no paging)
// GET /api/reports/stats?year=&month=
// GET /api/reports/chart?year=&month=
// GET /api/reports/parties?year=&month=&kind=

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	f, err := historyFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, total, err := s.store.History(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.WeighingTicket{}
	}
	f.Normalize()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":     items,
		"total":     total,
		"page":      f.Page,
		"page_size": f.PageSize,
	})
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	f, err := historyFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := s.store.HistorySummary(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleReportStats(w http.ResponseWriter, r *http.Request) {
	p, err := reportPeriod(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.store.ReportStats(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReportChart(w http.ResponseWriter, r *http.Request) {
	p, err := reportPeriod(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	points, err := s.store.ReportChart(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if points == nil {
		points = []domain.ChartPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"points": points,
	})
}

func (s *Server) handleReportParties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := reportPeriod(q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var kind domain.Kind
	if v := q.Get("kind"); v != "" {
		if kind, err = domain.ParseKind(v); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	parties, err := s.store.ReportParties(r.Context(), p, kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if parties == nil {
		parties = []domain.PartyStats{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"parties": parties,
	})
}

// ─── Query Parsing ──────────────────────────────────────────────────────────

func historyFilter(q url.Values) (domain.HistoryFilter, error) {
	f := domain.HistoryFilter{Search: strings.TrimSpace(q.Get("q"))}

	var err error
	if f.From, err = queryDate(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(q, "to"); err != nil {
		return f, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, &domain.ValidationError{Field: "to", Reason: "must not be before from"}
	}
	if v := q.Get("kind"); v != "" {
		if f.Kind, err = domain.ParseKind(v); err != nil {
			return f, err
		}
	}
	switch st := domain.Status(strings.ToUpper(q.Get("status"))); st {
	case "":
	case domain.StatusPending, domain.StatusFinalized:
		f.Status = st
	default:
		return f, &domain.ValidationError{Field: "status", Reason: "must be PENDING or FINALIZED"}
	}
	if f.Page, err = queryInt(q, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(q, "page_size"); err != nil {
		return f, err
	}
	return f, nil
}

func reportPeriod(q url.Values) (domain.ReportPeriod, error) {
	var p domain.ReportPeriod
	var err error
	if p.Year, err = queryInt(q, "year"); err != nil {
		return p, err
	}
	if p.Month, err = queryInt(q, "month"); err != nil {
		return p, err
	}
	if p.Month < 0 || p.Month > 12 {
		return p, &domain.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	if p.Month > 0 && p.Year == 0 {
		return p, &domain.ValidationError{Field: "month", Reason: "requires a year"}
	}
	return p, nil
}

func queryDate(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, time.Local)
	if err != nil {
		return nil, &domain.ValidationError{Field: key, Reason: "must be a YYYY-MM-DD date"}
	}
	return &t, nil
}

func queryInt(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{Field: key, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
