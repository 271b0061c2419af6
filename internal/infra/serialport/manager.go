// Package serialport owns the connection to the weighing indicator.
// A Manager opens one port at a time and feeds every chunk it reads into a
// framing.Decoder on two channels: raw per read, framed per CRLF line.
package serialport

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/framing"
)

// Port is the subset of serial.Port the manager needs.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Opener opens a port at the given baud rate (8N1).
type Opener func(path string, baud int) (Port, error)

// Lister enumerates candidate port paths.
type Lister func() ([]string, error)

// OpenSerial is the default Opener.
func OpenSerial(path string, baud int) (Port, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Config controls the serial transport.
type Config struct {
	DefaultBaud    int           // Baud rate when none is given (default: 9600)
	ReadBufferSize int           // Bytes per read (default: 256)
	CloseWait      time.Duration // How long Disconnect waits for the reader (default: 1s)
}

// DefaultConfig returns serial defaults.
func DefaultConfig() Config {
	return Config{
		DefaultBaud:    9600,
		ReadBufferSize: 256,
		CloseWait:      time.Second,
	}
}

// Status describes the current connection.
type Status struct {
	Connected bool   `json:"connected"`
	Path      string `json:"path,omitempty"`
	BaudRate  int    `json:"baud_rate,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithOpener replaces the serial opener.
func WithOpener(o Opener) Option { return func(m *Manager) { m.open = o } }

// WithLister replaces the port enumerator.
func WithLister(l Lister) Option { return func(m *Manager) { m.list = l } }

// WithStatusHook is called with the new status after every change.
// It runs with the manager locked and must not call back into it.
func WithStatusHook(fn func(Status)) Option { return func(m *Manager) { m.onStatus = fn } }

// Manager holds at most one open port.
type Manager struct {
	mu       sync.Mutex
	config   Config
	open     Opener
	list     Lister
	decoder  *framing.Decoder
	log      *zap.Logger
	onStatus func(Status)

	port   Port
	gen    uint64 // bumped on every open/close; stale readers compare and bail
	done   chan struct{}
	status Status
}

// New creates a manager feeding dec.
func New(cfg Config, dec *framing.Decoder, log *zap.Logger, opts ...Option) *Manager {
	if cfg.DefaultBaud <= 0 {
		cfg.DefaultBaud = 9600
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 256
	}
	m := &Manager{
		config:  cfg,
		open:    OpenSerial,
		list:    serial.GetPortsList,
		decoder: dec,
		log:     log.Named("serial"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// List returns the available port paths, sorted.
func (m *Manager) List() ([]string, error) {
	ports, err := m.list()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// Connect closes any open port, opens path and starts reading.
// A zero baud uses the configured default.
func (m *Manager) Connect(path string, baud int) error {
	if path == "" {
		return &domain.ValidationError{Field: "path", Reason: "is required"}
	}
	if baud <= 0 {
		baud = m.config.DefaultBaud
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeLocked(); err != nil {
		m.log.Warn("close previous port", zap.Error(err))
	}

	p, err := m.open(path, baud)
	if err != nil {
		m.status = Status{Path: path, BaudRate: baud, LastError: err.Error()}
		m.statusChanged()
		m.log.Error("open port failed", zap.String("path", path), zap.Int("baud", baud), zap.Error(err))
		return fmt.Errorf("open %s: %w", path, err)
	}

	// Some indicators only transmit with the modem lines asserted.
	if err := p.SetDTR(true); err != nil {
		m.log.Warn("set DTR failed", zap.String("path", path), zap.Error(err))
	}
	if err := p.SetRTS(true); err != nil {
		m.log.Warn("set RTS failed", zap.String("path", path), zap.Error(err))
	}

	m.decoder.Reset()
	m.port = p
	m.gen++
	m.done = make(chan struct{})
	m.status = Status{Connected: true, Path: path, BaudRate: baud}
	m.statusChanged()

	go m.readLoop(p, m.gen, m.done)

	m.log.Info("port connected", zap.String("path", path), zap.Int("baud", baud))
	return nil
}

// Disconnect closes the port. Closing an already closed port is a no-op.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	done := m.done
	err := m.closeLocked()
	m.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(m.config.CloseWait):
			m.log.Warn("serial reader did not stop in time")
		}
	}
	if err != nil {
		return fmt.Errorf("close port: %w", err)
	}
	return nil
}

// Close is Disconnect, for shutdown paths.
func (m *Manager) Close() error { return m.Disconnect() }

// Status returns a snapshot of the connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) closeLocked() error {
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	m.gen++
	m.done = nil
	m.status.Connected = false
	m.statusChanged()
	m.log.Info("port disconnected", zap.String("path", m.status.Path))
	return err
}

func (m *Manager) statusChanged() {
	if m.onStatus != nil {
		m.onStatus(m.status)
	}
}

// readLoop feeds the decoder until the port fails or is closed.
func (m *Manager) readLoop(p Port, gen uint64, done chan struct{}) {
	defer close(done)

	var lines framing.LineSplitter
	buf := make([]byte, m.config.ReadBufferSize)
	for {
		n, err := p.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			m.decoder.FeedRaw(string(chunk))
			for _, line := range lines.Write(chunk) {
				m.decoder.FeedFrame(line)
			}
		}
		if err != nil {
			m.readFailed(gen, err)
			return
		}
	}
}

// readFailed records a runtime read error unless the port was closed on
// purpose in the meantime.
func (m *Manager) readFailed(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.port == nil {
		return
	}
	m.log.Error("serial read failed", zap.String("path", m.status.Path), zap.Error(err))
	_ = m.port.Close()
	m.port = nil
	m.gen++
	m.done = nil
	m.status.Connected = false
	m.status.LastError = err.Error()
	m.statusChanged()
}
