// Package domain contains pure weighbridge business types with ZERO infrastructure imports.
// This is the innermost ring: tickets, kinds, sequence counters, net-weight rules.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Transaction Kind ───────────────────────────────────────────────────────

// Kind is the business direction of a weighing ticket. It is fixed at
// stage 1 and selects the document-number prefix.
type Kind string

const (
	KindPurchase Kind = "PURCHASE"
	KindSale     Kind = "SALE"
)

// Code returns the document-number prefix for the kind.
func (k Kind) Code() string {
	switch k {
	case KindPurchase:
		return "PURCH"
	case KindSale:
		return "SALES"
	default:
		return ""
	}
}

// Label returns the operator-facing name used on delivery notes and sheets.
func (k Kind) Label() string {
	switch k {
	case KindPurchase:
		return "Pembelian"
	case KindSale:
		return "Penjualan"
	default:
		return string(k)
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPurchase || k == KindSale
}

// ParseKind accepts the canonical value, the document code, or the label,
// case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PURCHASE", "PURCH", "PEMBELIAN", "BUY":
		return KindPurchase, nil
	case "SALE", "SALES", "PENJUALAN", "SELL":
		return KindSale, nil
	}
	return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown transaction kind %q", s)}
}

// ─── Ticket Status ──────────────────────────────────────────────────────────

// Status is the persisted lifecycle state of a ticket.
// AwaitingStage1 is conceptual and never stored.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFinalized Status = "FINALIZED"
)

// ─── Ticket ID ──────────────────────────────────────────────────────────────

// TicketID is an opaque, time-ordered identifier assigned at stage 1.
// It is encoded as a JSON string because it exceeds 2^53.
type TicketID int64

// String formats the id in base 10.
func (id TicketID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseTicketID parses a base-10 ticket id.
func ParseTicketID(s string) (TicketID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "id", Reason: fmt.Sprintf("invalid ticket id %q", s)}
	}
	return TicketID(n), nil
}

// MarshalJSON encodes the id as a quoted string.
func (id TicketID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts both a quoted string and a bare number.
func (id *TicketID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*id = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	var n json.Number = json.Number(s)
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("ticket id: %w", err)
	}
	*id = TicketID(v)
	return nil
}

// ─── Weighing Ticket ────────────────────────────────────────────────────────

// Details are the operator-entered descriptive fields of a ticket.
type Details struct {
	Counterparty string `json:"counterparty" validate:"max=128"`
	Product      string `json:"product" validate:"max=128"`
	Plate        string `json:"plate" validate:"max=32"`
	Driver       string `json:"driver" validate:"max=64"`
	Notes        string `json:"notes" validate:"max=512"`
}

// WeighingTicket is one truck's in/out weighing pair.
// All weights are whole kilograms.
type WeighingTicket struct {
	ID               TicketID        `json:"id"`
	DocNumber        string          `json:"doc_number"`
	Kind             Kind            `json:"kind"`
	Status           Status          `json:"status"`
	Stage1Weight     int64           `json:"stage1_weight"`
	Stage1At         time.Time       `json:"stage1_at"`
	Stage2Weight     *int64          `json:"stage2_weight,omitempty"`
	Stage2At         *time.Time      `json:"stage2_at,omitempty"`
	NotedWeight      int64           `json:"noted_weight"`
	RebatePercent    decimal.Decimal `json:"rebate_percent"`
	NetWeight        int64           `json:"net_weight"`
	WeightDifference int64           `json:"weight_difference"`
	Price            decimal.Decimal `json:"price"`
	Unit             string          `json:"unit"`
	Details
	UpdatedAt time.Time `json:"updated_at"`
}

// Pending reports whether the ticket still awaits its second weighing.
func (t *WeighingTicket) Pending() bool {
	return t.Status == StatusPending
}

// GrossWeight returns |stage1 - stage2|, or zero while pending.
func (t *WeighingTicket) GrossWeight() int64 {
	if t.Stage2Weight == nil {
		return 0
	}
	return absDiff(t.Stage1Weight, *t.Stage2Weight)
}

// RecordedAt is the business timestamp of the ticket: stage 2 when
// finalized, stage 1 otherwise.
func (t *WeighingTicket) RecordedAt() time.Time {
	if t.Stage2At != nil {
		return *t.Stage2At
	}
	return t.Stage1At
}

// TotalPrice returns round(net × price).
func (t *WeighingTicket) TotalPrice() int64 {
	return decimal.NewFromInt(t.NetWeight).Mul(t.Price).Round(0).IntPart()
}

// Finalization is the stage-2 write applied to a pending ticket.
type Finalization struct {
	TicketID         TicketID
	Stage2Weight     int64
	Stage2At         time.Time
	RebatePercent    decimal.Decimal
	NetWeight        int64
	WeightDifference int64
}

// ─── Sequence Counter ───────────────────────────────────────────────────────

// SequenceCounter is the last document number issued for a code in a month.
type SequenceCounter struct {
	Code      string `json:"code"`
	YearMonth int    `json:"year_month"` // YYMM
	Counter   int    `json:"counter"`
}

// DocNumber formats the counter as <CODE>-<YY><MM><seq4>.
func (c SequenceCounter) DocNumber() string {
	return FormatDocNumber(c.Code, c.YearMonth, c.Counter)
}

// YearMonth returns the YYMM integer for t in t's location.
func YearMonth(t time.Time) int {
	return (t.Year()%100)*100 + int(t.Month())
}

// FormatDocNumber renders a document number. Counters beyond 9999 widen the
// sequence field rather than wrap.
func FormatDocNumber(code string, yearMonth, counter int) string {
	return fmt.Sprintf("%s-%04d%04d", code, yearMonth, counter)
}
