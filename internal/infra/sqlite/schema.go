// Weighbridge SQLite schema.
// Tickets, per-kind monthly document counters, the sync outbox, and
// operator settings.
package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements, applied in order on Open.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Weighing tickets. Status is explicit; the CHECK keeps the stage-2
		// columns consistent with it.
		`CREATE TABLE IF NOT EXISTS tickets (
			id                INTEGER PRIMARY KEY,
			doc_number        TEXT NOT NULL UNIQUE,
			kind              TEXT NOT NULL CHECK (kind IN ('PURCHASE', 'SALE')),
			status            TEXT NOT NULL DEFAULT 'PENDING',
			stage1_weight     INTEGER NOT NULL,
			stage1_at         TEXT NOT NULL,
			stage2_weight     INTEGER,
			stage2_at         TEXT,
			noted_weight      INTEGER NOT NULL DEFAULT 0,
			rebate_percent    TEXT NOT NULL DEFAULT '0',
			net_weight        INTEGER NOT NULL DEFAULT 0,
			weight_difference INTEGER NOT NULL DEFAULT 0,
			price             TEXT NOT NULL DEFAULT '0',
			unit              TEXT NOT NULL DEFAULT 'kg',
			counterparty      TEXT NOT NULL DEFAULT '',
			product           TEXT NOT NULL DEFAULT '',
			plate             TEXT NOT NULL DEFAULT '',
			driver            TEXT NOT NULL DEFAULT '',
			notes             TEXT NOT NULL DEFAULT '',
			updated_at        TEXT NOT NULL,
			CHECK (
				(status = 'PENDING'   AND stage2_at IS NULL     AND stage2_weight IS NULL) OR
				(status = 'FINALIZED' AND stage2_at IS NOT NULL AND stage2_weight IS NOT NULL)
			)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status, stage1_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_stage1 ON tickets(stage1_at)`,

		// Last issued document sequence per kind code and month
		`CREATE TABLE IF NOT EXISTS sequence_counters (
			code       TEXT PRIMARY KEY,
			year_month INTEGER NOT NULL,
			counter    INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Outbox of finalized tickets awaiting the spreadsheet push
		`CREATE TABLE IF NOT EXISTS sync_outbox (
			id         TEXT PRIMARY KEY,
			ticket_id  INTEGER NOT NULL REFERENCES tickets(id),
			status     TEXT NOT NULL DEFAULT 'QUEUED',
			attempts   INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON sync_outbox(status, created_at)`,

		// Operator settings
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	}
}
