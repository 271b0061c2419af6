package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/timbang-id/timbang/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// History & Reports
// ═══════════════════════════════════════════════════════════════════════════
// A ticket is dated by its recorded time: stage 2 once finalized, stage 1
// before. Reports only count finalized tickets; history shows both.

const recordedAt = `COALESCE(stage2_at, stage1_at)`

// historyWhere builds the WHERE clause shared by History and HistorySummary.
func historyWhere(f domain.HistoryFilter) (string, []any) {
	var conds []string
	var args []any

	if f.From != nil {
		conds = append(conds, `date(`+recordedAt+`) >= ?`)
		args = append(args, f.From.Format("2006-01-02"))
	}
	if f.To != nil {
		conds = append(conds, `date(`+recordedAt+`) <= ?`)
		args = append(args, f.To.Format("2006-01-02"))
	}
	if f.Kind != "" {
		conds = append(conds, `kind = ?`)
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(f.Status))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		conds = append(conds, `(`+likeAny("counterparty", "plate", "doc_number", "product")+`)`)
		p := likePattern(s)
		args = append(args, p, p, p, p)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// History returns one page of tickets, newest stage 1 first, plus the total
// match count.
func (db *DB) History(ctx context.Context, f domain.HistoryFilter) ([]domain.WeighingTicket, int64, error) {
	f.Normalize()
	where, args := historyWhere(f)

	var total int64
	if err := sqlx.GetContext(ctx, db.db, &total, `SELECT COUNT(*) FROM tickets`+where, args...); err != nil {
		return nil, 0, &domain.StorageError{Op: "count history", Err: err}
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets` + where +
		` ORDER BY stage1_at DESC, id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), f.PageSize, (f.Page-1)*f.PageSize)

	var rows []ticketRow
	if err := sqlx.SelectContext(ctx, db.db, &rows, query, pageArgs...); err != nil {
		return nil, 0, &domain.StorageError{Op: "list history", Err: err}
	}
	return toTickets(rows), total, nil
}

// HistorySummary totals the tickets matched by f (paging ignored).
func (db *DB) HistorySummary(ctx context.Context, f domain.HistoryFilter) (domain.HistorySummary, error) {
	where, args := historyWhere(f)
	var s domain.HistorySummary
	err := sqlx.GetContext(ctx, db.db, &s, `
		SELECT
			COUNT(*)                            AS count,
			COALESCE(SUM(net_weight), 0)        AS total_net,
			COALESCE(SUM(weight_difference), 0) AS total_difference,
			COALESCE(SUM(stage1_weight), 0)     AS total_stage1,
			COALESCE(SUM(stage2_weight), 0)     AS total_stage2,
			COALESCE(SUM(noted_weight), 0)      AS total_noted_weight
		FROM tickets`+where, args...)
	if err != nil {
		return domain.HistorySummary{}, &domain.StorageError{Op: "history summary", Err: err}
	}
	return s, nil
}

// periodWhere restricts to finalized tickets in p.
func periodWhere(p domain.ReportPeriod) (string, []any) {
	conds := []string{`status = ?`}
	args := []any{string(domain.StatusFinalized)}
	if p.Year > 0 {
		conds = append(conds, `strftime('%Y', `+recordedAt+`) = ?`)
		args = append(args, fmt.Sprintf("%04d", p.Year))
		if p.Month > 0 {
			conds = append(conds, `strftime('%m', `+recordedAt+`) = ?`)
			args = append(args, fmt.Sprintf("%02d", p.Month))
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ReportStats totals a period.
func (db *DB) ReportStats(ctx context.Context, p domain.ReportPeriod) (domain.ReportStats, error) {
	where, args := periodWhere(p)
	var s domain.ReportStats
	err := sqlx.GetContext(ctx, db.db, &s, `
		SELECT
			COUNT(*)                            AS total_transactions,
			COALESCE(SUM(net_weight), 0)        AS total_net,
			COALESCE(SUM(weight_difference), 0) AS total_difference
		FROM tickets`+where, args...)
	if err != nil {
		return domain.ReportStats{}, &domain.StorageError{Op: "report stats", Err: err}
	}
	return s, nil
}

// ReportChart buckets net weight per kind: by day within a month, by month
// within a year, by year otherwise.
func (db *DB) ReportChart(ctx context.Context, p domain.ReportPeriod) ([]domain.ChartPoint, error) {
	bucket := `'%Y'`
	switch {
	case p.Year > 0 && p.Month > 0:
		bucket = `'%d'`
	case p.Year > 0:
		bucket = `'%m'`
	}
	label := `strftime(` + bucket + `, ` + recordedAt + `)`

	where, args := periodWhere(p)
	var points []domain.ChartPoint
	err := sqlx.SelectContext(ctx, db.db, &points, `
		SELECT `+label+` AS label, kind, COALESCE(SUM(net_weight), 0) AS total_net
		FROM tickets`+where+`
		GROUP BY label, kind
		ORDER BY label ASC, kind ASC`, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: "report chart", Err: err}
	}
	return points, nil
}

// ReportParties returns the ten counterparties with the most net weight.
func (db *DB) ReportParties(ctx context.Context, p domain.ReportPeriod, kind domain.Kind) ([]domain.PartyStats, error) {
	where, args := periodWhere(p)
	if kind != "" {
		where += ` AND kind = ?`
		args = append(args, string(kind))
	}
	var out []domain.PartyStats
	err := sqlx.SelectContext(ctx, db.db, &out, `
		SELECT
			counterparty,
			COUNT(*)                            AS total_transactions,
			COALESCE(SUM(net_weight), 0)        AS total_net,
			COALESCE(SUM(weight_difference), 0) AS total_difference
		FROM tickets`+where+`
		GROUP BY counterparty
		ORDER BY total_net DESC, counterparty ASC
		LIMIT 10`, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: "report parties", Err: err}
	}
	return out, nil
}
