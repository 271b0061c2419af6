// Package framing turns the indicator's byte stream into weight readings.
//
// The indicator speaks an ad hoc fixed-width format: a sign character
// followed by a six-digit integer field, padded to at least eight printable
// characters. Frames arrive on two logical channels fed from the same port:
//   - parsed: lines split on "\r\n"
//   - raw:    whatever chunk the driver handed us, unframed
//
// A raw chunk is applied only while no parsed frame has been observed for
// FallbackWindow, so a noisy raw stream never overrides a well-framed one.
package framing

import (
	"strings"
	"sync"
	"time"
)

// Channel identifies which feed produced a reading.
type Channel string

const (
	ChannelFrame Channel = "frame"
	ChannelRaw   Channel = "raw"
)

// MinFrameLen is the shortest sanitized text that can carry a weight.
const MinFrameLen = 8

// DefaultFallbackWindow is how long the raw channel stays muted after a
// parsed frame.
const DefaultFallbackWindow = 2000 * time.Millisecond

// Sanitize drops every byte outside printable ASCII (0x20-0x7E) and trims
// surrounding whitespace.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c <= 0x7E {
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// Decode parses one chunk. It returns false for anything that is not a
// weight frame; callers keep their previous value in that case.
func Decode(s string) (int64, bool) {
	return decodeSanitized(Sanitize(s))
}

func decodeSanitized(s string) (int64, bool) {
	if len(s) < MinFrameLen {
		return 0, false
	}
	var v int64
	for i := 1; i <= 6; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	if s[0] == '-' {
		v = -v
	}
	return v, true
}

// ─── Decoder ────────────────────────────────────────────────────────────────

// Reading is a decoded weight snapshot.
type Reading struct {
	Weight  int64     `json:"weight"`
	Raw     string    `json:"raw"`
	Channel Channel   `json:"channel"`
	At      time.Time `json:"at"`
}

// Result classifies what a fed chunk did.
type Result string

const (
	ResultAccepted   Result = "accepted"
	ResultSkipped    Result = "skipped"    // not a frame, prior value kept
	ResultSuppressed Result = "suppressed" // raw chunk inside the fallback window
)

// Config controls decoder behavior.
type Config struct {
	FallbackWindow time.Duration
	// OnReading is called synchronously for every accepted reading.
	OnReading func(Reading)
	// OnResult observes every fed chunk (metrics).
	OnResult func(Channel, Result)
}

// DefaultConfig returns the indicator defaults.
func DefaultConfig() Config {
	return Config{FallbackWindow: DefaultFallbackWindow}
}

// Decoder holds the current reading and the last parsed-frame time.
// It is safe for concurrent use: the serial reader feeds it while API
// handlers read Current.
type Decoder struct {
	mu        sync.RWMutex
	cfg       Config
	now       func() time.Time // injectable clock for testing
	lastFrame time.Time
	rawText   string
	current   Reading
	has       bool
}

// NewDecoder creates a decoder.
func NewDecoder(cfg Config) *Decoder {
	if cfg.FallbackWindow <= 0 {
		cfg.FallbackWindow = DefaultFallbackWindow
	}
	return &Decoder{cfg: cfg, now: time.Now}
}

// FeedFrame handles a delimiter-framed line.
func (d *Decoder) FeedFrame(text string) (Reading, bool) {
	d.mu.Lock()
	d.lastFrame = d.now()
	d.mu.Unlock()
	return d.apply(ChannelFrame, text)
}

// FeedRaw handles an unframed chunk.
func (d *Decoder) FeedRaw(text string) (Reading, bool) {
	d.mu.RLock()
	muted := !d.lastFrame.IsZero() && d.now().Sub(d.lastFrame) <= d.cfg.FallbackWindow
	d.mu.RUnlock()
	if muted {
		d.observe(ChannelRaw, ResultSuppressed)
		return Reading{}, false
	}
	return d.apply(ChannelRaw, text)
}

func (d *Decoder) apply(ch Channel, text string) (Reading, bool) {
	s := Sanitize(text)
	if s == "" {
		d.observe(ch, ResultSkipped)
		return Reading{}, false
	}

	d.mu.Lock()
	d.rawText = s
	w, ok := decodeSanitized(s)
	if !ok {
		d.mu.Unlock()
		d.observe(ch, ResultSkipped)
		return Reading{}, false
	}
	r := Reading{Weight: w, Raw: s, Channel: ch, At: d.now()}
	d.current, d.has = r, true
	d.mu.Unlock()

	d.observe(ch, ResultAccepted)
	if d.cfg.OnReading != nil {
		d.cfg.OnReading(r)
	}
	return r, true
}

func (d *Decoder) observe(ch Channel, res Result) {
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(ch, res)
	}
}

// Current returns the last accepted reading.
func (d *Decoder) Current() (Reading, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, d.has
}

// RawText returns the last non-empty sanitized text seen, valid or not.
func (d *Decoder) RawText() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rawText
}

// Reset forgets the current reading, e.g. after the port is closed.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current, d.has = Reading{}, false
	d.lastFrame = time.Time{}
	d.rawText = ""
}
