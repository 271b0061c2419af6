// Package daemon wires the station together: store, indicator, weighing
// service, sync worker and HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/api"
	"github.com/timbang-id/timbang/internal/app/syncer"
	"github.com/timbang-id/timbang/internal/app/weighing"
	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/framing"
	"github.com/timbang-id/timbang/internal/infra/idgen"
	"github.com/timbang-id/timbang/internal/infra/observability"
	"github.com/timbang-id/timbang/internal/infra/serialport"
	"github.com/timbang-id/timbang/internal/infra/sheets"
	"github.com/timbang-id/timbang/internal/infra/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Daemon is a running station.
type Daemon struct {
	config Config
	log    *zap.Logger

	DB      *sqlite.DB
	Decoder *framing.Decoder
	Scale   *serialport.Manager
	Tickets *weighing.Service
	Worker  *syncer.Worker
	Hub     *api.ReadingHub
	server  *api.Server

	mu   sync.Mutex
	addr net.Addr
}

// New opens the store and builds every component. Nothing runs until Run.
func New(cfg Config, log *zap.Logger) (*Daemon, error) {
	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, err
	}

	d := &Daemon{config: cfg, log: log, DB: db, Hub: api.NewReadingHub()}

	d.Decoder = framing.NewDecoder(framing.Config{
		FallbackWindow: cfg.Scale.Fallback(),
		OnReading: func(r framing.Reading) {
			observability.ObserveReading(r)
			d.Hub.Broadcast(r)
		},
		OnResult: observability.ObserveFrame,
	})

	scaleCfg := serialport.DefaultConfig()
	scaleCfg.DefaultBaud = cfg.Scale.BaudRate
	d.Scale = serialport.New(scaleCfg, d.Decoder, log,
		serialport.WithStatusHook(func(st serialport.Status) {
			observability.ObserveConnected(st.Connected)
		}),
	)

	pusher := sheets.New(sheets.Config{
		URL:          cfg.Sync.URL,
		Timeout:      mustDuration(cfg.Sync.PushTimeout),
		MaxRedirects: cfg.Sync.MaxRedirects,
	}, db, log)

	d.Worker = syncer.New(syncer.Config{
		PollInterval:  mustDuration(cfg.Sync.PollInterval),
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		PushTimeout:   mustDuration(cfg.Sync.PushTimeout),
	}, db, pusher, log, syncer.WithResultHook(observability.ObserveSync))

	d.Tickets, err = NewTicketService(cfg, db, log, weighing.Hooks{
		OnCreated: observability.ObserveCreated,
		OnFinalized: func(t domain.WeighingTicket) {
			observability.ObserveFinalized(t)
			if cfg.Sync.Enabled {
				d.Worker.Notify()
			}
		},
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	d.server = api.NewServer(d.Tickets, db, log)
	d.server.SetScale(d.Scale, d.Decoder)
	d.server.SetReadingHub(d.Hub)
	d.server.SetWebDir(cfg.API.WebDir)
	if cfg.Sync.Enabled {
		d.server.SetSync(d.Worker)
	}
	if cfg.Metrics.Enabled {
		d.server.EnableMetrics()
	}
	return d, nil
}

// NewTicketService builds the weighing service over db. The CLI uses it
// directly for offline commands.
func NewTicketService(cfg Config, db *sqlite.DB, log *zap.Logger, hooks weighing.Hooks) (*weighing.Service, error) {
	ids, err := idgen.New(cfg.Station.NodeID)
	if err != nil {
		return nil, err
	}
	wcfg := weighing.DefaultConfig()
	if cfg.Station.DefaultUnit != "" {
		wcfg.DefaultUnit = cfg.Station.DefaultUnit
	}
	return weighing.New(wcfg, db, ids, log, weighing.WithHooks(hooks)), nil
}

// Handler returns the API handler.
func (d *Daemon) Handler() http.Handler { return d.server.Handler() }

// Addr is the bound listen address once Run is serving, nil before.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Run serves until ctx is cancelled or the listener fails, then shuts
// everything down in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.config.API.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.config.API.Addr(), err)
	}
	d.mu.Lock()
	d.addr = ln.Addr()
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.config.Scale.AutoConnect && d.config.Scale.Port != "" {
		if err := d.Scale.Connect(d.config.Scale.Port, d.config.Scale.BaudRate); err != nil {
			d.log.Warn("indicator auto-connect failed", zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	if d.config.Sync.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Worker.Run(ctx); err != nil {
				d.log.Error("sync worker stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(d.Hub.Close)

	serveErr := make(chan error, 1)
	go func() {
		d.log.Info("api listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.log.Warn("api shutdown", zap.Error(err))
	}
	if err := d.Scale.Close(); err != nil {
		d.log.Warn("close indicator", zap.Error(err))
	}
	wg.Wait()
	d.log.Info("station stopped")
	return runErr
}

// Close releases the store. Call after Run returns.
func (d *Daemon) Close() error {
	return d.DB.Close()
}
