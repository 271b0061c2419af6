package weighing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/timbang-id/timbang/internal/domain"
)

// Sequencer issues monthly document numbers per transaction kind.
//
// The store increments atomically on its own; the per-kind lock is held
// across the whole create transaction so two creators of the same kind
// commit in the order their numbers were issued.
type Sequencer struct {
	mu    sync.Mutex
	locks map[domain.Kind]*sync.Mutex
}

// NewSequencer creates an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{locks: make(map[domain.Kind]*sync.Mutex)}
}

// Lock acquires the lock for kind and returns its release func.
func (s *Sequencer) Lock(kind domain.Kind) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[kind]
	if !ok {
		l = &sync.Mutex{}
		s.locks[kind] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Issue bumps the counter for kind in store and returns the formatted
// document number, e.g. PURCH-25010001.
func (s *Sequencer) Issue(ctx context.Context, store domain.TicketStore, kind domain.Kind, now time.Time) (string, error) {
	code := kind.Code()
	if code == "" {
		return "", &domain.ValidationError{Field: "kind", Reason: "unknown transaction kind"}
	}
	c, err := store.NextSequence(ctx, code, domain.YearMonth(now))
	if err != nil {
		var se *domain.StorageError
		if errors.As(err, &se) {
			return "", err
		}
		return "", &domain.StorageError{Op: "next sequence", Err: err}
	}
	return c.DocNumber(), nil
}
