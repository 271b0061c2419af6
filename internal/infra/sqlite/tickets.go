package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/timbang-id/timbang/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Ticket Repository
// ═══════════════════════════════════════════════════════════════════════════

// Tickets implements domain.TicketStore over either the pool or a tx.
type Tickets struct {
	q sqlx.ExtContext
}

const ticketColumns = `id, doc_number, kind, status, stage1_weight, stage1_at,
	stage2_weight, stage2_at, noted_weight, rebate_percent, net_weight,
	weight_difference, price, unit, counterparty, product, plate, driver,
	notes, updated_at`

type ticketRow struct {
	ID               int64          `db:"id"`
	DocNumber        string         `db:"doc_number"`
	Kind             string         `db:"kind"`
	Status           string         `db:"status"`
	Stage1Weight     int64          `db:"stage1_weight"`
	Stage1At         string         `db:"stage1_at"`
	Stage2Weight     sql.NullInt64  `db:"stage2_weight"`
	Stage2At         sql.NullString `db:"stage2_at"`
	NotedWeight      int64          `db:"noted_weight"`
	RebatePercent    string         `db:"rebate_percent"`
	NetWeight        int64          `db:"net_weight"`
	WeightDifference int64          `db:"weight_difference"`
	Price            string         `db:"price"`
	Unit             string         `db:"unit"`
	Counterparty     string         `db:"counterparty"`
	Product          string         `db:"product"`
	Plate            string         `db:"plate"`
	Driver           string         `db:"driver"`
	Notes            string         `db:"notes"`
	UpdatedAt        string         `db:"updated_at"`
}

func (r ticketRow) toDomain() domain.WeighingTicket {
	t := domain.WeighingTicket{
		ID:               domain.TicketID(r.ID),
		DocNumber:        r.DocNumber,
		Kind:             domain.Kind(r.Kind),
		Status:           domain.Status(r.Status),
		Stage1Weight:     r.Stage1Weight,
		Stage1At:         parseTime(r.Stage1At),
		NotedWeight:      r.NotedWeight,
		RebatePercent:    parseDecimal(r.RebatePercent),
		NetWeight:        r.NetWeight,
		WeightDifference: r.WeightDifference,
		Price:            parseDecimal(r.Price),
		Unit:             r.Unit,
		Details: domain.Details{
			Counterparty: r.Counterparty,
			Product:      r.Product,
			Plate:        r.Plate,
			Driver:       r.Driver,
			Notes:        r.Notes,
		},
		UpdatedAt: parseTime(r.UpdatedAt),
	}
	if r.Stage2Weight.Valid {
		w := r.Stage2Weight.Int64
		t.Stage2Weight = &w
	}
	if r.Stage2At.Valid {
		at := parseTime(r.Stage2At.String)
		t.Stage2At = &at
	}
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func toTickets(rows []ticketRow) []domain.WeighingTicket {
	out := make([]domain.WeighingTicket, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}

// ─── Sequence ───────────────────────────────────────────────────────────────

// NextSequence issues the next counter for code in one statement: a new
// month resets to 1, the same month increments.
func (s *Tickets) NextSequence(ctx context.Context, code string, yearMonth int) (domain.SequenceCounter, error) {
	var c struct {
		Code      string `db:"code"`
		YearMonth int    `db:"year_month"`
		Counter   int    `db:"counter"`
	}
	err := sqlx.GetContext(ctx, s.q, &c, `
		INSERT INTO sequence_counters (code, year_month, counter, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(code) DO UPDATE SET
			counter = CASE
				WHEN sequence_counters.year_month = excluded.year_month
				THEN sequence_counters.counter + 1
				ELSE 1
			END,
			year_month = excluded.year_month,
			updated_at = excluded.updated_at
		RETURNING code, year_month, counter`,
		code, yearMonth, formatTime(time.Now()))
	if err != nil {
		return domain.SequenceCounter{}, &domain.StorageError{Op: "next sequence", Err: err}
	}
	return domain.SequenceCounter{Code: c.Code, YearMonth: c.YearMonth, Counter: c.Counter}, nil
}

// ─── Tickets ────────────────────────────────────────────────────────────────

// CreateTicket inserts a stage-1 ticket.
func (s *Tickets) CreateTicket(ctx context.Context, t *domain.WeighingTicket) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tickets (id, doc_number, kind, status, stage1_weight, stage1_at,
			noted_weight, rebate_percent, net_weight, weight_difference, price, unit,
			counterparty, product, plate, driver, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(t.ID), t.DocNumber, string(t.Kind), string(t.Status),
		t.Stage1Weight, formatTime(t.Stage1At),
		t.NotedWeight, t.RebatePercent.String(), t.NetWeight, t.WeightDifference,
		t.Price.String(), t.Unit,
		t.Counterparty, t.Product, t.Plate, t.Driver, t.Notes,
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return &domain.StorageError{Op: "create ticket", Err: err}
	}
	return nil
}

// GetTicket returns one ticket or domain.ErrTicketNotFound.
func (s *Tickets) GetTicket(ctx context.Context, id domain.TicketID) (*domain.WeighingTicket, error) {
	var r ticketRow
	err := sqlx.GetContext(ctx, s.q, &r,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get ticket", Err: err}
	}
	t := r.toDomain()
	return &t, nil
}

// FinalizeTicket writes stage 2 only while the ticket is pending.
func (s *Tickets) FinalizeTicket(ctx context.Context, f domain.Finalization) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tickets SET
			status = ?, stage2_weight = ?, stage2_at = ?, rebate_percent = ?,
			net_weight = ?, weight_difference = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusFinalized), f.Stage2Weight, formatTime(f.Stage2At),
		f.RebatePercent.String(), f.NetWeight, f.WeightDifference,
		formatTime(f.Stage2At),
		int64(f.TicketID), string(domain.StatusPending),
	)
	if err != nil {
		return &domain.StorageError{Op: "finalize ticket", Err: err}
	}
	n, err := affected("finalize ticket", res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetTicket(ctx, f.TicketID); err != nil {
		return err
	}
	return domain.NotPending(f.TicketID)
}

// ListPending returns pending tickets, newest stage 1 first. A non-empty
// search matches counterparty, plate, document number or product.
func (s *Tickets) ListPending(ctx context.Context, search string) ([]domain.WeighingTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status = ?`
	args := []any{string(domain.StatusPending)}

	if search = strings.TrimSpace(search); search != "" {
		query += ` AND (` + likeAny("counterparty", "plate", "doc_number", "product") + `)`
		p := likePattern(search)
		args = append(args, p, p, p, p)
	}
	query += ` ORDER BY stage1_at DESC, id DESC`

	var rows []ticketRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, &domain.StorageError{Op: "list pending", Err: err}
	}
	return toTickets(rows), nil
}

// UpdateDetails rewrites the descriptive fields. Weights, kind and
// document number are never touched.
func (s *Tickets) UpdateDetails(ctx context.Context, id domain.TicketID, d domain.Details) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tickets SET
			counterparty = ?, product = ?, plate = ?, driver = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		d.Counterparty, d.Product, d.Plate, d.Driver, d.Notes,
		formatTime(time.Now()), int64(id),
	)
	if err != nil {
		return &domain.StorageError{Op: "update details", Err: err}
	}
	n, err := affected("update details", res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

// EnqueueSync appends an outbox event.
func (s *Tickets) EnqueueSync(ctx context.Context, ev domain.SyncEvent) error {
	status := ev.Status
	if status == "" {
		status = domain.SyncQueued
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sync_outbox (id, ticket_id, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, 0, '', ?, ?)`,
		ev.ID, int64(ev.TicketID), string(status),
		formatTime(ev.CreatedAt), formatTime(ev.CreatedAt),
	)
	if err != nil {
		return &domain.StorageError{Op: "enqueue sync", Err: err}
	}
	return nil
}

// ─── LIKE helpers ───────────────────────────────────────────────────────────

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps s for a case-insensitive substring match against
// fold(column); see likeAny.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func likeAny(cols ...string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = `fold(` + c + `) LIKE ? ESCAPE '\'`
	}
	return strings.Join(parts, " OR ")
}
