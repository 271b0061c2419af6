package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator"

	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/observability"
)

// ─── Settings & Sync API ────────────────────────────────────────────────────
// GET  /api/settings    all saved settings
// PUT  /api/settings    upsert a subset of known keys
// GET  /api/sync/stats  outbox counts and worker counters
// POST /api/sync/retry  requeue FAILED events

// settingRules lists the keys the station accepts and their validation tag.
var settingRules = map[string]string{
	domain.SettingSyncURL:        "omitempty,url,max=2048",
	domain.SettingCompanyName:    "max=256",
	domain.SettingCompanyAddress: "max=512",
	domain.SettingCompanyPhone:   "max=64",
}

// SettingKeys returns the accepted settings keys, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingRules))
	for k := range settingRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeSettings trims every value in place and rejects unknown keys
// or values that fail their rule.
func NormalizeSettings(v *validator.Validate, values map[string]string) error {
	for k, val := range values {
		rule, ok := settingRules[k]
		if !ok {
			return &domain.ValidationError{Field: k, Reason: "unknown setting"}
		}
		val = strings.TrimSpace(val)
		if err := v.Var(val, rule); err != nil {
			return &domain.ValidationError{Field: k, Reason: "invalid value"}
		}
		values[k] = val
	}
	return nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.store.Settings(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := decodeBody(w, r, &values); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := NormalizeSettings(s.validate, values); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.SaveSettings(r.Context(), values); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.SyncCounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.metricsEnabled {
		observability.ObserveOutbox(counts)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outbox": counts,
		"worker": s.sync.Stats(),
	})
}

func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	n, err := s.sync.RetryFailed(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requeued": n,
	})
}
