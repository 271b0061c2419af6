package weighing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/sqlite"
)

// seqIDs issues 1, 2, 3, ...
type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NextTicketID() domain.TicketID { return domain.TicketID(g.n.Add(1)) }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, opts ...Option) (*Service, *sqlite.DB, *clock) {
	t.Helper()
	db := newTestDB(t)
	clk := &clock{t: time.Date(2025, 1, 15, 8, 0, 0, 0, time.Local)}
	opts = append([]Option{WithClock(clk.now)}, opts...)
	return New(DefaultConfig(), db, &seqIDs{}, zap.NewNop(), opts...), db, clk
}

// ─── Stage 1 ────────────────────────────────────────────────────────────────

func TestCreate_DocNumbers(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	steps := []struct {
		kind domain.Kind
		at   time.Time
		want string
	}{
		{domain.KindPurchase, time.Date(2025, 1, 15, 8, 0, 0, 0, time.Local), "PURCH-25010001"},
		{domain.KindPurchase, time.Date(2025, 1, 20, 8, 0, 0, 0, time.Local), "PURCH-25010002"},
		{domain.KindSale, time.Date(2025, 1, 20, 9, 0, 0, 0, time.Local), "SALES-25010001"},
		{domain.KindPurchase, time.Date(2025, 2, 1, 7, 0, 0, 0, time.Local), "PURCH-25020001"},
	}
	for _, s := range steps {
		clk.set(s.at)
		tk, err := svc.Create(ctx, CreateInput{Kind: s.kind, Weight: 1000})
		if err != nil {
			t.Fatalf("Create(%s) error: %v", s.kind, err)
		}
		if tk.DocNumber != s.want {
			t.Errorf("DocNumber = %s, want %s", tk.DocNumber, s.want)
		}
	}
}

func TestCreate_Fields(t *testing.T) {
	var created []domain.WeighingTicket
	svc, db, clk := newTestService(t, WithHooks(Hooks{
		OnCreated: func(tk domain.WeighingTicket) { created = append(created, tk) },
	}))
	ctx := context.Background()

	tk, err := svc.Create(ctx, CreateInput{
		Kind:        domain.KindPurchase,
		Weight:      12340,
		NotedWeight: 12000,
		Price:       decimal.RequireFromString("1250.5"),
		Details:     domain.Details{Counterparty: "  CV Maju ", Plate: "B 1234 XY"},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if tk.Status != domain.StatusPending || !tk.Pending() {
		t.Errorf("Status = %s, want PENDING", tk.Status)
	}
	if tk.Stage1Weight != 12340 || tk.NetWeight != 12340 {
		t.Errorf("stage1 = %d net = %d, want 12340", tk.Stage1Weight, tk.NetWeight)
	}
	if tk.WeightDifference != 340 {
		t.Errorf("WeightDifference = %d, want 340", tk.WeightDifference)
	}
	if !tk.Stage1At.Equal(clk.now()) {
		t.Errorf("Stage1At = %v", tk.Stage1At)
	}
	if tk.Unit != "kg" {
		t.Errorf("Unit = %q, want kg", tk.Unit)
	}
	if tk.Counterparty != "CV Maju" {
		t.Errorf("Counterparty = %q, want trimmed", tk.Counterparty)
	}
	if len(created) != 1 || created[0].ID != tk.ID {
		t.Errorf("OnCreated calls = %d", len(created))
	}

	pending, _ := db.ListPending(ctx, "")
	if len(pending) != 1 || pending[0].ID != tk.ID {
		t.Error("new ticket should be immediately pending")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"missing kind", CreateInput{Weight: 10}, "kind"},
		{"unknown kind", CreateInput{Kind: "RENTAL", Weight: 10}, "kind"},
		{"negative noted", CreateInput{Kind: domain.KindSale, NotedWeight: -1}, "noted_weight"},
		{"negative price", CreateInput{Kind: domain.KindSale, Price: decimal.NewFromInt(-5)}, "price"},
		{"long plate", CreateInput{Kind: domain.KindSale, Details: domain.Details{Plate: fmt.Sprintf("%040d", 0)}}, "plate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}

	// A rejected request must not consume a number.
	tk, err := svc.Create(ctx, CreateInput{Kind: domain.KindSale, Weight: 10})
	if err != nil {
		t.Fatal(err)
	}
	if tk.DocNumber != "SALES-25010001" {
		t.Errorf("DocNumber = %s, want SALES-25010001", tk.DocNumber)
	}
}

func TestCreate_ConcurrentSameKind(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	docs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(w int64) {
			defer wg.Done()
			tk, err := svc.Create(ctx, CreateInput{Kind: domain.KindSale, Weight: w})
			if err != nil {
				t.Errorf("Create() error: %v", err)
				return
			}
			docs <- tk.DocNumber
		}(int64(1000 + i))
	}
	wg.Wait()
	close(docs)

	seen := make(map[string]bool)
	for d := range docs {
		if seen[d] {
			t.Errorf("duplicate document number %s", d)
		}
		seen[d] = true
	}
	for i := 1; i <= n; i++ {
		want := domain.FormatDocNumber("SALES", 2501, i)
		if !seen[want] {
			t.Errorf("missing %s", want)
		}
	}
}

// ─── Stage 2 ────────────────────────────────────────────────────────────────

func TestFinalize_NetWeight(t *testing.T) {
	var finalized []domain.WeighingTicket
	svc, db, clk := newTestService(t, WithHooks(Hooks{
		OnFinalized: func(tk domain.WeighingTicket) { finalized = append(finalized, tk) },
	}))
	ctx := context.Background()

	tk, err := svc.Create(ctx, CreateInput{Kind: domain.KindPurchase, Weight: 1000, NotedWeight: 550})
	if err != nil {
		t.Fatal(err)
	}
	clk.set(clk.now().Add(35 * time.Minute))

	got, err := svc.Finalize(ctx, FinalizeInput{
		TicketID:      tk.ID,
		Weight:        400,
		RebatePercent: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if got.GrossWeight() != 600 {
		t.Errorf("GrossWeight = %d, want 600", got.GrossWeight())
	}
	if got.NetWeight != 570 || got.WeightDifference != 20 {
		t.Errorf("net = %d diff = %d, want 570/20", got.NetWeight, got.WeightDifference)
	}
	if got.Status != domain.StatusFinalized || got.Stage2At == nil || !got.Stage2At.Equal(clk.now()) {
		t.Errorf("ticket = %+v", got)
	}
	if len(finalized) != 1 {
		t.Errorf("OnFinalized calls = %d, want 1", len(finalized))
	}

	stored, _ := db.GetTicket(ctx, tk.ID)
	if stored.NetWeight != 570 || *stored.Stage2Weight != 400 {
		t.Errorf("stored = %+v", stored)
	}

	events, _ := db.SyncEvents(ctx, tk.ID)
	if len(events) != 1 || events[0].Status != domain.SyncQueued {
		t.Errorf("outbox = %+v, want one QUEUED event", events)
	}
}

func TestFinalize_OrderIndependentAndZero(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		w1, w2  int64
		wantNet int64
	}{
		{400, 1000, 600},
		{1000, 400, 600},
		{2500, 2500, 0},
	}
	for _, tt := range tests {
		tk, _ := svc.Create(ctx, CreateInput{Kind: domain.KindSale, Weight: tt.w1})
		got, err := svc.Finalize(ctx, FinalizeInput{TicketID: tk.ID, Weight: tt.w2})
		if err != nil {
			t.Fatalf("Finalize(%d→%d) error: %v", tt.w1, tt.w2, err)
		}
		if got.NetWeight != tt.wantNet {
			t.Errorf("Finalize(%d→%d) net = %d, want %d", tt.w1, tt.w2, got.NetWeight, tt.wantNet)
		}
	}
}

func TestFinalize_Errors(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Finalize(ctx, FinalizeInput{Weight: 500}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no ticket selected: err = %v, want ValidationError", err)
	}
	if _, err := svc.Finalize(ctx, FinalizeInput{TicketID: 999, Weight: 500}); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Errorf("unknown ticket: err = %v, want ErrTicketNotFound", err)
	}

	tk, _ := svc.Create(ctx, CreateInput{Kind: domain.KindPurchase, Weight: 1000})
	if _, err := svc.Finalize(ctx, FinalizeInput{TicketID: tk.ID, Weight: 10, RebatePercent: decimal.NewFromInt(101)}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("rebate 101: err = %v, want ValidationError", err)
	}

	if _, err := svc.Finalize(ctx, FinalizeInput{TicketID: tk.ID, Weight: 300}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Finalize(ctx, FinalizeInput{TicketID: tk.ID, Weight: 900})
	if !errors.Is(err, domain.ErrTicketNotPending) || !errors.Is(err, domain.ErrTicketNotFound) {
		t.Errorf("second finalize: err = %v, want NotPending", err)
	}

	events, _ := db.SyncEvents(ctx, tk.ID)
	if len(events) != 1 {
		t.Errorf("outbox events = %d, want exactly 1", len(events))
	}
}

// ─── Registry ───────────────────────────────────────────────────────────────

func TestPending_NeverShowsFinalized(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, CreateInput{Kind: domain.KindPurchase, Weight: 1000, Details: domain.Details{Plate: "B 1"}})
	clk.set(clk.now().Add(time.Minute))
	b, _ := svc.Create(ctx, CreateInput{Kind: domain.KindSale, Weight: 2000, Details: domain.Details{Plate: "B 2"}})

	first, err := svc.Pending(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := svc.Pending(ctx, "")
	if len(first) != 2 || first[0].ID != b.ID || first[1].ID != a.ID {
		t.Fatalf("Pending() = %+v, want b then a", first)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Error("Pending() should be idempotent")
		}
	}

	svc.Finalize(ctx, FinalizeInput{TicketID: a.ID, Weight: 100})
	for _, q := range []string{"", "B 1", "PURCH"} {
		list, _ := svc.Pending(ctx, q)
		for _, tk := range list {
			if tk.ID == a.ID {
				t.Errorf("Pending(%q) returned finalized ticket", q)
			}
		}
	}
}

func TestUpdateDetails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tk, _ := svc.Create(ctx, CreateInput{Kind: domain.KindPurchase, Weight: 1000})
	svc.Finalize(ctx, FinalizeInput{TicketID: tk.ID, Weight: 400})

	got, err := svc.UpdateDetails(ctx, tk.ID, domain.Details{Counterparty: "PT Baru", Notes: "revisi"})
	if err != nil {
		t.Fatalf("UpdateDetails() error: %v", err)
	}
	if got.Counterparty != "PT Baru" || got.NetWeight != 600 {
		t.Errorf("got %+v", got)
	}

	if _, err := svc.UpdateDetails(ctx, 0, domain.Details{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("id 0: err = %v", err)
	}
	if _, err := svc.UpdateDetails(ctx, 999, domain.Details{}); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
}

// ─── Sequencer ──────────────────────────────────────────────────────────────

type failingStore struct{ domain.TicketStore }

func (failingStore) NextSequence(context.Context, string, int) (domain.SequenceCounter, error) {
	return domain.SequenceCounter{}, errors.New("disk I/O error")
}

func TestSequencer_WrapsStoreFailure(t *testing.T) {
	seq := NewSequencer()
	_, err := seq.Issue(context.Background(), failingStore{}, domain.KindSale, time.Now())
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("err = %v, want StorageError", err)
	}
	if _, err := seq.Issue(context.Background(), failingStore{}, "X", time.Now()); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown kind: err = %v", err)
	}
}
