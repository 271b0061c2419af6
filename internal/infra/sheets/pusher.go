// Package sheets pushes finalized tickets to a spreadsheet bridge script.
// The bridge is an HTTP endpoint that appends one row per POST and
// typically answers with a redirect to the script's result page.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/domain"
)

// SettingsSource resolves operator settings.
type SettingsSource interface {
	Setting(ctx context.Context, key string) (string, error)
}

// Config controls the pusher.
type Config struct {
	URL          string        // Fallback bridge URL when the setting is empty
	Timeout      time.Duration // Per-request timeout (default: 15s)
	MaxRedirects int           // Redirect hops re-POSTed before giving up (default: 5)
}

// DefaultConfig returns pusher defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		MaxRedirects: 5,
	}
}

// Pusher implements domain.SyncPusher.
type Pusher struct {
	config   Config
	settings SettingsSource
	client   *http.Client
	log      *zap.Logger
}

// New creates a pusher. settings may be nil.
func New(cfg Config, settings SettingsSource, log *zap.Logger) *Pusher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	return &Pusher{
		config:   cfg,
		settings: settings,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// Redirects are followed by hand so the body is POSTed again.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log.Named("sheets"),
	}
}

// ─── Payload ────────────────────────────────────────────────────────────────

const timestampLayout = "2006-01-02 15:04:05"

// Payload is the bridge request body.
type Payload struct {
	Values    []any  `json:"values"`
	SheetName string `json:"sheetName"`
}

// BuildPayload lays out one sheet row for t.
func BuildPayload(t domain.WeighingTicket) Payload {
	var w2 any
	var t2 string
	if t.Stage2Weight != nil {
		w2 = *t.Stage2Weight
	}
	if t.Stage2At != nil {
		t2 = t.Stage2At.Format(timestampLayout)
	}
	return Payload{
		Values: []any{
			t.ID.String(),
			t.RecordedAt().Format(timestampLayout),
			t.DocNumber,
			t.Counterparty,
			t.Plate,
			t.Product,
			t.Kind.Label(),
			t.Stage1Weight,
			t.Stage1At.Format(timestampLayout),
			w2,
			t2,
			t.NetWeight,
			json.Number(t.RebatePercent.String()),
			json.Number(t.Price.String()),
			t.TotalPrice(),
		},
		SheetName: t.Kind.Label(),
	}
}

// ─── Push ───────────────────────────────────────────────────────────────────

// URL returns the bridge URL: the saved setting, else the configured one.
func (p *Pusher) URL(ctx context.Context) (string, error) {
	if p.settings != nil {
		v, err := p.settings.Setting(ctx, domain.SettingSyncURL)
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return strings.TrimSpace(p.config.URL), nil
}

// Push sends t to the bridge. No configured URL counts as success.
func (p *Pusher) Push(ctx context.Context, t domain.WeighingTicket) error {
	target, err := p.URL(ctx)
	if err != nil {
		return &domain.SyncError{TicketID: t.ID, Err: fmt.Errorf("resolve url: %w", err)}
	}
	if target == "" {
		p.log.Debug("no bridge url configured, skipping", zap.Stringer("id", t.ID))
		return nil
	}

	body, err := json.Marshal(BuildPayload(t))
	if err != nil {
		return &domain.SyncError{TicketID: t.ID, Err: fmt.Errorf("encode payload: %w", err)}
	}

	for hop := 0; ; hop++ {
		resp, err := p.post(ctx, target, body)
		if err != nil {
			return &domain.SyncError{TicketID: t.ID, Err: err}
		}

		if isRedirect(resp.status) {
			if hop >= p.config.MaxRedirects {
				return &domain.SyncError{TicketID: t.ID, StatusCode: resp.status,
					Err: fmt.Errorf("stopped after %d redirects", hop)}
			}
			next, err := resolve(target, resp.location)
			if err != nil {
				return &domain.SyncError{TicketID: t.ID, StatusCode: resp.status, Err: err}
			}
			p.log.Debug("following redirect", zap.Stringer("id", t.ID), zap.String("location", next))
			target = next
			continue
		}

		if resp.status >= 200 && resp.status < 400 {
			p.log.Info("ticket synced", zap.Stringer("id", t.ID), zap.String("doc", t.DocNumber))
			return nil
		}
		return &domain.SyncError{TicketID: t.ID, StatusCode: resp.status,
			Err: fmt.Errorf("bridge rejected push: %s", resp.snippet)}
	}
}

type response struct {
	status   int
	location string
	snippet  string
}

func (p *Pusher) post(ctx context.Context, target string, body []byte) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return response{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		snippet:  strings.TrimSpace(string(b)),
	}, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolve(base, location string) (string, error) {
	if location == "" {
		return "", errors.New("redirect without Location header")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	l, err := b.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location: %w", err)
	}
	return l.String(), nil
}
