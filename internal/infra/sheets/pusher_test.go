package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/domain"
)

type mapSettings map[string]string

func (m mapSettings) Setting(_ context.Context, key string) (string, error) { return m[key], nil }

func finalizedTicket() domain.WeighingTicket {
	w2 := int64(400)
	t1 := time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local)
	t2 := t1.Add(30 * time.Minute)
	return domain.WeighingTicket{
		ID:            1234567890123456789,
		DocNumber:     "PURCH-25010001",
		Kind:          domain.KindPurchase,
		Status:        domain.StatusFinalized,
		Stage1Weight:  1000,
		Stage1At:      t1,
		Stage2Weight:  &w2,
		Stage2At:      &t2,
		RebatePercent: decimal.NewFromInt(5),
		NetWeight:     570,
		Price:         decimal.RequireFromString("1250.5"),
		Details:       domain.Details{Counterparty: "CV Maju", Plate: "B 1234 XY", Product: "Sawit"},
	}
}

func TestBuildPayload(t *testing.T) {
	p := BuildPayload(finalizedTicket())
	if p.SheetName != "Pembelian" {
		t.Errorf("SheetName = %q", p.SheetName)
	}
	if len(p.Values) != 15 {
		t.Fatalf("len(Values) = %d, want 15", len(p.Values))
	}

	b, _ := json.Marshal(p)
	var got struct {
		Values []json.RawMessage `json:"values"`
	}
	json.Unmarshal(b, &got)

	checks := map[int]string{
		0:  `"1234567890123456789"`,
		1:  `"2025-01-10 09:30:00"`,
		2:  `"PURCH-25010001"`,
		6:  `"Pembelian"`,
		7:  `1000`,
		9:  `400`,
		11: `570`,
		12: `5`,
		13: `1250.5`,
		14: `712785`,
	}
	for i, want := range checks {
		if string(got.Values[i]) != want {
			t.Errorf("values[%d] = %s, want %s", i, got.Values[i], want)
		}
	}
}

func TestPush_NoURLSkips(t *testing.T) {
	p := New(DefaultConfig(), mapSettings{}, zap.NewNop())
	if err := p.Push(context.Background(), finalizedTicket()); err != nil {
		t.Errorf("Push() with no URL = %v, want nil", err)
	}
}

func TestPush_SettingOverridesConfig(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"result":"success"}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = "http://127.0.0.1:1/unused"
	p := New(cfg, mapSettings{domain.SettingSyncURL: srv.URL + "/exec"}, zap.NewNop())

	if err := p.Push(context.Background(), finalizedTicket()); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestPush_FollowsRedirectWithPOST(t *testing.T) {
	var final struct {
		method string
		body   Payload
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/exec", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/echo?user=1", http.StatusFound)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		final.method = r.Method
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &final.body)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL + "/exec"
	p := New(cfg, nil, zap.NewNop())

	if err := p.Push(context.Background(), finalizedTicket()); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	if final.method != http.MethodPost {
		t.Errorf("redirect target method = %q, want POST", final.method)
	}
	if final.body.SheetName != "Pembelian" || len(final.body.Values) != 15 {
		t.Errorf("redirect target body = %+v", final.body)
	}
}

func TestPush_RedirectLoopBounded(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/again", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	cfg.MaxRedirects = 3
	p := New(cfg, nil, zap.NewNop())

	err := p.Push(context.Background(), finalizedTicket())
	if !errors.Is(err, domain.ErrSync) {
		t.Fatalf("err = %v, want SyncError", err)
	}
	if hits.Load() != 4 {
		t.Errorf("hits = %d, want 4 (1 + 3 redirects)", hits.Load())
	}
}

func TestPush_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	p := New(cfg, nil, zap.NewNop())

	err := p.Push(context.Background(), finalizedTicket())
	var se *domain.SyncError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SyncError", err)
	}
	if se.StatusCode != http.StatusInternalServerError || se.TicketID != 1234567890123456789 {
		t.Errorf("SyncError = %+v", se)
	}
}
