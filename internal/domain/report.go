package domain

import "time"

// ─── Sync Outbox Types ──────────────────────────────────────────────────────
// A finalized ticket emits one SyncEvent inside the finalize transaction.
// The worker consumes events later; delivery never feeds back into tickets.

// SyncStatus is the delivery state of an outbox event.
type SyncStatus string

const (
	SyncQueued    SyncStatus = "QUEUED"
	SyncSending   SyncStatus = "SENDING"
	SyncDelivered SyncStatus = "DELIVERED"
	SyncFailed    SyncStatus = "FAILED"
)

// SyncEvent is one outbox row.
type SyncEvent struct {
	ID        string     `json:"id"`
	TicketID  TicketID   `json:"ticket_id"`
	Status    SyncStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ─── History & Report Types ─────────────────────────────────────────────────

// HistoryFilter narrows the ticket history view. From/To are inclusive
// calendar dates matched against the ticket's recorded date.
type HistoryFilter struct {
	From     *time.Time
	To       *time.Time
	Search   string
	Kind     Kind
	Status   Status
	Page     int
	PageSize int
}

// MaxHistoryPage bounds Page so the row offset stays well inside int64.
const MaxHistoryPage = 1_000_000

// Normalize applies paging defaults (page 1, 10 per page, max 500) and
// clamps Page to MaxHistoryPage.
func (f *HistoryFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxHistoryPage {
		f.Page = MaxHistoryPage
	}
	if f.PageSize <= 0 {
		f.PageSize = 10
	}
	if f.PageSize > 500 {
		f.PageSize = 500
	}
}

// HistorySummary aggregates the tickets matched by a HistoryFilter.
type HistorySummary struct {
	Count            int64 `json:"count" db:"count"`
	TotalNet         int64 `json:"total_net" db:"total_net"`
	TotalDifference  int64 `json:"total_difference" db:"total_difference"`
	TotalStage1      int64 `json:"total_stage1" db:"total_stage1"`
	TotalStage2      int64 `json:"total_stage2" db:"total_stage2"`
	TotalNotedWeight int64 `json:"total_noted_weight" db:"total_noted_weight"`
}

// ReportPeriod selects a year, a month within a year, or everything (zero).
type ReportPeriod struct {
	Year  int
	Month int
}

// ReportStats is the headline figure set for a period.
type ReportStats struct {
	TotalTransactions int64 `json:"total_transactions" db:"total_transactions"`
	TotalNet          int64 `json:"total_net" db:"total_net"`
	TotalDifference   int64 `json:"total_difference" db:"total_difference"`
}

// ChartPoint is one bucket of net weight per kind.
type ChartPoint struct {
	Label    string `json:"label" db:"label"`
	Kind     Kind   `json:"kind" db:"kind"`
	TotalNet int64  `json:"total_net" db:"total_net"`
}

// PartyStats ranks counterparties by net weight.
type PartyStats struct {
	Counterparty      string `json:"counterparty" db:"counterparty"`
	TotalTransactions int64  `json:"total_transactions" db:"total_transactions"`
	TotalNet          int64  `json:"total_net" db:"total_net"`
	TotalDifference   int64  `json:"total_difference" db:"total_difference"`
}

// Known settings keys.
const (
	SettingSyncURL        = "google_script_url"
	SettingCompanyName    = "company_name"
	SettingCompanyAddress = "company_address"
	SettingCompanyPhone   = "company_phone"
)
