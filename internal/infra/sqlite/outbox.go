package sqlite

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/timbang-id/timbang/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Sync Outbox
// ═══════════════════════════════════════════════════════════════════════════
// Events are appended by FinalizeTicket's transaction (EnqueueSync) and
// drained by the sync worker. QUEUED → SENDING → DELIVERED | FAILED.

type syncRow struct {
	ID        string `db:"id"`
	TicketID  int64  `db:"ticket_id"`
	Status    string `db:"status"`
	Attempts  int    `db:"attempts"`
	LastError string `db:"last_error"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r syncRow) toDomain() domain.SyncEvent {
	return domain.SyncEvent{
		ID:        r.ID,
		TicketID:  domain.TicketID(r.TicketID),
		Status:    domain.SyncStatus(r.Status),
		Attempts:  r.Attempts,
		LastError: r.LastError,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

// ResetInFlightSync requeues events left SENDING by a crash.
func (db *DB) ResetInFlightSync(ctx context.Context) (int64, error) {
	return db.transition(ctx, "reset in-flight sync", domain.SyncSending, domain.SyncQueued)
}

// RetryFailedSync requeues every FAILED event.
func (db *DB) RetryFailedSync(ctx context.Context) (int64, error) {
	return db.transition(ctx, "retry failed sync", domain.SyncFailed, domain.SyncQueued)
}

func (db *DB) transition(ctx context.Context, op string, from, to domain.SyncStatus) (int64, error) {
	res, err := db.db.ExecContext(ctx,
		`UPDATE sync_outbox SET status = ?, updated_at = ? WHERE status = ?`,
		string(to), formatTime(time.Now()), string(from))
	if err != nil {
		return 0, &domain.StorageError{Op: op, Err: err}
	}
	return affected(op, res)
}

// QueuedSync returns up to limit queued events, oldest first.
func (db *DB) QueuedSync(ctx context.Context, limit int) ([]domain.SyncEvent, error) {
	var rows []syncRow
	err := sqlx.SelectContext(ctx, db.db, &rows, `
		SELECT id, ticket_id, status, attempts, last_error, created_at, updated_at
		FROM sync_outbox WHERE status = ?
		ORDER BY created_at ASC, id ASC LIMIT ?`,
		string(domain.SyncQueued), limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "queued sync", Err: err}
	}
	out := make([]domain.SyncEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// ClaimSync moves a QUEUED event to SENDING. False means someone else
// already claimed it.
func (db *DB) ClaimSync(ctx context.Context, id string) (bool, error) {
	res, err := db.db.ExecContext(ctx, `
		UPDATE sync_outbox SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.SyncSending), formatTime(time.Now()), id, string(domain.SyncQueued))
	if err != nil {
		return false, &domain.StorageError{Op: "claim sync", Err: err}
	}
	n, err := affected("claim sync", res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkSyncDelivered records a successful push.
func (db *DB) MarkSyncDelivered(ctx context.Context, id string) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE sync_outbox SET status = ?, last_error = '', updated_at = ? WHERE id = ?`,
		string(domain.SyncDelivered), formatTime(time.Now()), id)
	if err != nil {
		return &domain.StorageError{Op: "mark sync delivered", Err: err}
	}
	return nil
}

// MarkSyncFailed records a failed push with its reason.
func (db *DB) MarkSyncFailed(ctx context.Context, id string, reason string) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE sync_outbox SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(domain.SyncFailed), reason, formatTime(time.Now()), id)
	if err != nil {
		return &domain.StorageError{Op: "mark sync failed", Err: err}
	}
	return nil
}

// SyncCounts returns the number of events per status.
func (db *DB) SyncCounts(ctx context.Context) (map[domain.SyncStatus]int64, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int64  `db:"n"`
	}
	err := sqlx.SelectContext(ctx, db.db, &rows,
		`SELECT status, COUNT(*) AS n FROM sync_outbox GROUP BY status`)
	if err != nil {
		return nil, &domain.StorageError{Op: "sync counts", Err: err}
	}
	counts := map[domain.SyncStatus]int64{
		domain.SyncQueued:    0,
		domain.SyncSending:   0,
		domain.SyncDelivered: 0,
		domain.SyncFailed:    0,
	}
	for _, r := range rows {
		counts[domain.SyncStatus(r.Status)] = r.N
	}
	return counts, nil
}

// SyncEvents lists the outbox rows for a ticket, oldest first.
func (db *DB) SyncEvents(ctx context.Context, id domain.TicketID) ([]domain.SyncEvent, error) {
	var rows []syncRow
	err := sqlx.SelectContext(ctx, db.db, &rows, `
		SELECT id, ticket_id, status, attempts, last_error, created_at, updated_at
		FROM sync_outbox WHERE ticket_id = ? ORDER BY created_at ASC`, int64(id))
	if err != nil {
		return nil, &domain.StorageError{Op: "sync events", Err: err}
	}
	out := make([]domain.SyncEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
