// Package api provides the HTTP server for the weighbridge station.
// The operator screen and the CLI talk to the daemon through it.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/app/syncer"
	"github.com/timbang-id/timbang/internal/app/weighing"
	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/framing"
	"github.com/timbang-id/timbang/internal/infra/serialport"
)

// Version is reported by /api/version. Set by the CLI at startup.
var Version = "dev"

// Store is the read side the handlers need beyond the weighing service.
type Store interface {
	domain.ReportStore
	domain.SettingsStore
	SyncCounts(ctx context.Context) (map[domain.SyncStatus]int64, error)
	SyncEvents(ctx context.Context, id domain.TicketID) ([]domain.SyncEvent, error)
	Ping(ctx context.Context) error
}

// Scale is the serial port manager as seen by the API.
type Scale interface {
	List() ([]string, error)
	Connect(path string, baud int) error
	Disconnect() error
	Status() serialport.Status
}

// SyncQueue is the outbox worker as seen by the API.
type SyncQueue interface {
	RetryFailed(ctx context.Context) (int64, error)
	Stats() syncer.Stats
}

// Server is the station HTTP API server.
type Server struct {
	tickets        *weighing.Service
	store          Store
	log            *zap.Logger
	validate       *validator.Validate
	scale          Scale            // nil when no indicator is configured
	decoder        *framing.Decoder // current reading for stage weights
	sync           SyncQueue        // nil when sync is disabled
	hub            *ReadingHub      // live reading SSE feed
	metricsEnabled bool
	webDir         string
}

// NewServer creates a new API server.
func NewServer(tickets *weighing.Service, store Store, log *zap.Logger) *Server {
	return &Server{
		tickets:  tickets,
		store:    store,
		log:      log.Named("api"),
		validate: validator.New(),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetScale attaches the serial port manager and the decoder it feeds.
func (s *Server) SetScale(scale Scale, dec *framing.Decoder) {
	s.scale = scale
	s.decoder = dec
}

// SetSync attaches the outbox worker.
func (s *Server) SetSync(q SyncQueue) { s.sync = q }

// SetReadingHub sets the live reading SSE hub.
func (s *Server) SetReadingHub(h *ReadingHub) { s.hub = h }

// ReadingHub returns the live reading hub (for broadcasting readings).
func (s *Server) ReadingHub() *ReadingHub { return s.hub }

// SetWebDir serves the operator UI from dir when it holds an index.html.
func (s *Server) SetWebDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		s.log.Warn("web dir has no index.html, UI disabled", zap.String("dir", dir))
		return
	}
	s.webDir = dir
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	// The SSE feed lives outside the timeout group: it is held open.
	if s.hub != nil {
		r.Get("/api/scale/live", s.hub.HandleSSE)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		if s.scale != nil {
			r.Route("/api/scale", func(r chi.Router) {
				r.Get("/ports", s.handleScalePorts)
				r.Post("/connect", s.handleScaleConnect)
				r.Post("/disconnect", s.handleScaleDisconnect)
				r.Get("/status", s.handleScaleStatus)
				r.Get("/reading", s.handleScaleReading)
			})
		}

		r.Route("/api/tickets", func(r chi.Router) {
			r.Post("/", s.handleCreateTicket)
			r.Get("/pending", s.handlePendingTickets)
			r.Get("/{id}", s.handleGetTicket)
			r.Patch("/{id}", s.handleUpdateTicket)
			r.Post("/{id}/finalize", s.handleFinalizeTicket)
		})

		r.Get("/api/history", s.handleHistory)
		r.Get("/api/history/summary", s.handleHistorySummary)

		r.Route("/api/reports", func(r chi.Router) {
			r.Get("/stats", s.handleReportStats)
			r.Get("/chart", s.handleReportChart)
			r.Get("/parties", s.handleReportParties)
		})

		r.Get("/api/settings", s.handleGetSettings)
		r.Put("/api/settings", s.handlePutSettings)

		if s.sync != nil {
			r.Get("/api/sync/stats", s.handleSyncStats)
			r.Post("/api/sync/retry", s.handleSyncRetry)
		}
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Operator UI
	if s.webDir != "" {
		fileServer := http.FileServer(http.Dir(s.webDir))
		r.Get("/*", fileServer.ServeHTTP)
	} else {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status": "timbang is running",
			})
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if err := s.store.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if s.scale != nil {
		resp["scale_connected"] = s.scale.Status().Connected
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for the browser UI.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
