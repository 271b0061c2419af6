// Package weighing runs the two-stage weighing lifecycle.
//
//  1. Create (stage 1): issue a document number and persist a PENDING ticket
//  2. Finalize (stage 2): derive net weight, mark FINALIZED, enqueue sync
//
// Both transitions run inside one store transaction. Spreadsheet delivery
// happens later from the outbox and never affects the result here.
package weighing

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/domain"
)

// IDGenerator issues ticket ids.
type IDGenerator interface {
	NextTicketID() domain.TicketID
}

// Config controls service defaults.
type Config struct {
	DefaultUnit string // Unit stored when the caller gives none (default: kg)
}

// DefaultConfig returns service defaults.
func DefaultConfig() Config {
	return Config{DefaultUnit: "kg"}
}

// Hooks are called after a transition commits. They must not block.
type Hooks struct {
	OnCreated   func(domain.WeighingTicket)
	OnFinalized func(domain.WeighingTicket)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHooks installs post-commit hooks.
func WithHooks(h Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

// Service is the weighing state machine.
type Service struct {
	config   Config
	store    domain.TransactionalStore
	ids      IDGenerator
	seq      *Sequencer
	validate *validator.Validate
	log      *zap.Logger
	hooks    Hooks
	now      func() time.Time
}

// New creates a weighing service.
func New(cfg Config, store domain.TransactionalStore, ids IDGenerator, log *zap.Logger, opts ...Option) *Service {
	if cfg.DefaultUnit == "" {
		cfg.DefaultUnit = "kg"
	}
	s := &Service{
		config:   cfg,
		store:    store,
		ids:      ids,
		seq:      NewSequencer(),
		validate: newValidator(),
		log:      log.Named("weighing"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ─── Stage 1 ────────────────────────────────────────────────────────────────

// CreateInput is a stage-1 request. Weight is the scale reading.
type CreateInput struct {
	Kind        domain.Kind     `json:"kind" validate:"required,oneof=PURCHASE SALE"`
	Weight      int64           `json:"weight"`
	NotedWeight int64           `json:"noted_weight" validate:"gte=0"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit" validate:"max=16"`
	domain.Details
}

// Create records the first weighing and returns the pending ticket.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.WeighingTicket, error) {
	in.Details = trimDetails(in.Details)
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, &domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = s.config.DefaultUnit
	}

	unlock := s.seq.Lock(in.Kind)
	defer unlock()

	now := s.now().Truncate(time.Millisecond)
	t := &domain.WeighingTicket{
		ID:               s.ids.NextTicketID(),
		Kind:             in.Kind,
		Status:           domain.StatusPending,
		Stage1Weight:     in.Weight,
		Stage1At:         now,
		NotedWeight:      in.NotedWeight,
		RebatePercent:    decimal.Zero,
		NetWeight:        in.Weight,
		WeightDifference: in.Weight - in.NotedWeight,
		Price:            in.Price,
		Unit:             unit,
		Details:          in.Details,
		UpdatedAt:        now,
	}

	err := s.store.WithTx(ctx, func(tx domain.TicketStore) error {
		doc, err := s.seq.Issue(ctx, tx, in.Kind, now)
		if err != nil {
			return err
		}
		t.DocNumber = doc
		return tx.CreateTicket(ctx, t)
	})
	if err != nil {
		s.log.Error("create ticket failed", zap.String("kind", string(in.Kind)), zap.Error(err))
		return nil, err
	}

	s.log.Info("ticket created",
		zap.Stringer("id", t.ID),
		zap.String("doc", t.DocNumber),
		zap.Int64("stage1_weight", t.Stage1Weight),
	)
	if s.hooks.OnCreated != nil {
		s.hooks.OnCreated(*t)
	}
	return t, nil
}

// ─── Stage 2 ────────────────────────────────────────────────────────────────

// FinalizeInput is a stage-2 request for a pending ticket.
type FinalizeInput struct {
	TicketID      domain.TicketID `json:"ticket_id"`
	Weight        int64           `json:"weight"`
	RebatePercent decimal.Decimal `json:"rebate_percent"`
}

// Finalize records the second weighing, derives net weight and queues the
// ticket for spreadsheet sync in the same transaction.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (*domain.WeighingTicket, error) {
	if in.TicketID <= 0 {
		return nil, &domain.ValidationError{Field: "ticket_id", Reason: "no pending ticket selected"}
	}
	if err := domain.ValidateRebate(in.RebatePercent); err != nil {
		return nil, err
	}

	now := s.now().Truncate(time.Millisecond)
	var out *domain.WeighingTicket

	err := s.store.WithTx(ctx, func(tx domain.TicketStore) error {
		t, err := tx.GetTicket(ctx, in.TicketID)
		if err != nil {
			return err
		}
		if !t.Pending() {
			return domain.NotPending(in.TicketID)
		}

		res := domain.ComputeNet(t.Stage1Weight, in.Weight, in.RebatePercent, t.NotedWeight)
		f := domain.Finalization{
			TicketID:         t.ID,
			Stage2Weight:     in.Weight,
			Stage2At:         now,
			RebatePercent:    in.RebatePercent,
			NetWeight:        res.Net,
			WeightDifference: res.Difference,
		}
		if err := tx.FinalizeTicket(ctx, f); err != nil {
			return err
		}
		if err := tx.EnqueueSync(ctx, domain.SyncEvent{
			ID:        uuid.NewString(),
			TicketID:  t.ID,
			Status:    domain.SyncQueued,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		w2, at := in.Weight, now
		t.Status = domain.StatusFinalized
		t.Stage2Weight = &w2
		t.Stage2At = &at
		t.RebatePercent = in.RebatePercent
		t.NetWeight = res.Net
		t.WeightDifference = res.Difference
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		s.log.Warn("finalize ticket failed", zap.Stringer("id", in.TicketID), zap.Error(err))
		return nil, err
	}

	s.log.Info("ticket finalized",
		zap.Stringer("id", out.ID),
		zap.String("doc", out.DocNumber),
		zap.Int64("stage2_weight", in.Weight),
		zap.Int64("net_weight", out.NetWeight),
	)
	if s.hooks.OnFinalized != nil {
		s.hooks.OnFinalized(*out)
	}
	return out, nil
}

// ─── Queries & Edits ────────────────────────────────────────────────────────

// Get returns one ticket.
func (s *Service) Get(ctx context.Context, id domain.TicketID) (*domain.WeighingTicket, error) {
	if id <= 0 {
		return nil, &domain.ValidationError{Field: "id", Reason: "invalid ticket id"}
	}
	return s.store.GetTicket(ctx, id)
}

// Pending lists tickets awaiting stage 2, newest first.
func (s *Service) Pending(ctx context.Context, search string) ([]domain.WeighingTicket, error) {
	return s.store.ListPending(ctx, search)
}

// UpdateDetails edits the descriptive fields of a ticket in either state.
// Weights are never recomputed.
func (s *Service) UpdateDetails(ctx context.Context, id domain.TicketID, d domain.Details) (*domain.WeighingTicket, error) {
	if id <= 0 {
		return nil, &domain.ValidationError{Field: "id", Reason: "invalid ticket id"}
	}
	d = trimDetails(d)
	if err := s.validateStruct(d); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDetails(ctx, id, d); err != nil {
		return nil, err
	}
	s.log.Info("ticket details updated", zap.Stringer("id", id))
	return s.store.GetTicket(ctx, id)
}

func trimDetails(d domain.Details) domain.Details {
	return domain.Details{
		Counterparty: strings.TrimSpace(d.Counterparty),
		Product:      strings.TrimSpace(d.Product),
		Plate:        strings.TrimSpace(d.Plate),
		Driver:       strings.TrimSpace(d.Driver),
		Notes:        strings.TrimSpace(d.Notes),
	}
}
