package domain

import "context"

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// TicketStore is the persistence contract of the weighing core.
type TicketStore interface {
	// NextSequence atomically bumps (or resets) the counter for code and
	// returns the value just issued.
	NextSequence(ctx context.Context, code string, yearMonth int) (SequenceCounter, error)

	CreateTicket(ctx context.Context, t *WeighingTicket) error
	GetTicket(ctx context.Context, id TicketID) (*WeighingTicket, error)

	// FinalizeTicket applies f only if the ticket is still pending.
	FinalizeTicket(ctx context.Context, f Finalization) error

	// ListPending returns pending tickets, most recent first, optionally
	// filtered by a case-insensitive substring.
	ListPending(ctx context.Context, search string) ([]WeighingTicket, error)

	UpdateDetails(ctx context.Context, id TicketID, d Details) error
	EnqueueSync(ctx context.Context, ev SyncEvent) error
}

// TransactionalStore runs several TicketStore calls as one atomic unit.
type TransactionalStore interface {
	TicketStore
	WithTx(ctx context.Context, fn func(TicketStore) error) error
}

// OutboxStore is consumed by the sync worker.
type OutboxStore interface {
	GetTicket(ctx context.Context, id TicketID) (*WeighingTicket, error)
	ResetInFlightSync(ctx context.Context) (int64, error)
	QueuedSync(ctx context.Context, limit int) ([]SyncEvent, error)
	ClaimSync(ctx context.Context, id string) (bool, error)
	MarkSyncDelivered(ctx context.Context, id string) error
	MarkSyncFailed(ctx context.Context, id string, reason string) error
	RetryFailedSync(ctx context.Context) (int64, error)
	SyncCounts(ctx context.Context) (map[SyncStatus]int64, error)
}

// SettingsStore persists operator settings as key/value pairs.
type SettingsStore interface {
	Setting(ctx context.Context, key string) (string, error)
	Settings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
}

// ReportStore serves history and report views.
type ReportStore interface {
	History(ctx context.Context, f HistoryFilter) ([]WeighingTicket, int64, error)
	HistorySummary(ctx context.Context, f HistoryFilter) (HistorySummary, error)
	ReportStats(ctx context.Context, p ReportPeriod) (ReportStats, error)
	ReportChart(ctx context.Context, p ReportPeriod) ([]ChartPoint, error)
	ReportParties(ctx context.Context, p ReportPeriod, kind Kind) ([]PartyStats, error)
}

// SyncPusher delivers a finalized ticket to the external spreadsheet.
type SyncPusher interface {
	Push(ctx context.Context, t WeighingTicket) error
}
