package framing

import (
	"strings"
	"testing"
	"time"
)

// ─── Decode Tests ───────────────────────────────────────────────────────────

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   int64
		wantOK bool
	}{
		{"plus sign with trailing unit", "+012345XX", 12345, true},
		{"negative", "-003000kg", -3000, true},
		{"space sign", " 001250 kg\r\n", 0, false}, // trimmed to "001250 kg": index 1..6 = "01250 "
		{"zero", "+000000kg", 0, true},
		{"exactly eight", "+0012345", 1234, true},
		{"control bytes shrink below eight", "\x02-003000\x03", 0, false},
		{"seven chars", "+012345", 0, false},
		{"empty", "", 0, false},
		{"only control bytes", "\x00\x01\x02", 0, false},
		{"letters in field", "+01A345kg", 0, false},
		{"space in field", "+01 345kg", 0, false},
		{"ST,GS prefix", "ST,GS,+0001230kg", 0, false},
		{"control bytes inside", "+01\x0023\x0045kg", 12345, true},
		{"high bytes stripped", "\xff+000900\xfekg", 900, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("Decode(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Decode(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecode_ShortFramesNeverDecode(t *testing.T) {
	for n := 0; n < MinFrameLen; n++ {
		s := "+" + strings.Repeat("9", n)
		if len(s) >= MinFrameLen {
			continue
		}
		if _, ok := Decode(s); ok {
			t.Errorf("Decode(%q) accepted a %d-char frame", s, len(s))
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("\x02  +001000kg \r\n"); got != "+001000kg" {
		t.Errorf("Sanitize() = %q", got)
	}
	if got := Sanitize("\x7f\x1f"); got != "" {
		t.Errorf("Sanitize(non-printable) = %q, want empty", got)
	}
}

// ─── Decoder Tests ──────────────────────────────────────────────────────────

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDecoder(cfg Config) (*Decoder, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)}
	d := NewDecoder(cfg)
	d.now = clk.now
	return d, clk
}

func TestDecoder_FrameUpdatesReading(t *testing.T) {
	d, _ := newTestDecoder(DefaultConfig())

	if _, ok := d.Current(); ok {
		t.Fatal("new decoder should have no reading")
	}

	r, ok := d.FeedFrame("+012340kg")
	if !ok || r.Weight != 12340 || r.Channel != ChannelFrame {
		t.Fatalf("FeedFrame = %+v, %v", r, ok)
	}

	// Garbage keeps the prior value but updates the raw display text.
	if _, ok := d.FeedFrame("ERR OVERLOAD"); ok {
		t.Fatal("garbage frame should be skipped")
	}
	cur, _ := d.Current()
	if cur.Weight != 12340 {
		t.Errorf("Current().Weight = %d, want 12340 retained", cur.Weight)
	}
	if d.RawText() != "ERR OVERLOAD" {
		t.Errorf("RawText() = %q", d.RawText())
	}
}

func TestDecoder_RawFallbackWindow(t *testing.T) {
	d, clk := newTestDecoder(DefaultConfig())

	// No frame ever seen: raw applies.
	if r, ok := d.FeedRaw("+000500kg"); !ok || r.Weight != 500 || r.Channel != ChannelRaw {
		t.Fatalf("FeedRaw before any frame = %+v, %v", r, ok)
	}

	d.FeedFrame("+001000kg")

	clk.advance(1500 * time.Millisecond)
	if _, ok := d.FeedRaw("+009999kg"); ok {
		t.Fatal("raw within window should be suppressed")
	}
	clk.advance(500 * time.Millisecond) // exactly 2000ms
	if _, ok := d.FeedRaw("+009999kg"); ok {
		t.Fatal("raw at the window edge should be suppressed")
	}
	cur, _ := d.Current()
	if cur.Weight != 1000 {
		t.Errorf("Current().Weight = %d, want 1000", cur.Weight)
	}

	clk.advance(time.Millisecond)
	if r, ok := d.FeedRaw("+009999kg"); !ok || r.Weight != 9999 {
		t.Errorf("raw after window = %+v, %v", r, ok)
	}
}

func TestDecoder_UnparseableFrameStillMutesRaw(t *testing.T) {
	d, clk := newTestDecoder(DefaultConfig())
	d.FeedFrame("noise")
	clk.advance(100 * time.Millisecond)
	if _, ok := d.FeedRaw("+000700kg"); ok {
		t.Error("any observed frame should mute the raw channel")
	}
}

func TestDecoder_Observers(t *testing.T) {
	var readings []Reading
	results := map[Result]int{}
	d, clk := newTestDecoder(Config{
		FallbackWindow: time.Second,
		OnReading:      func(r Reading) { readings = append(readings, r) },
		OnResult:       func(_ Channel, r Result) { results[r]++ },
	})

	d.FeedFrame("+000100kg")
	d.FeedFrame("\x02\x03")
	d.FeedRaw("+000200kg")
	clk.advance(2 * time.Second)
	d.FeedRaw("+000300kg")

	if len(readings) != 2 || readings[1].Weight != 300 {
		t.Errorf("readings = %+v", readings)
	}
	if results[ResultAccepted] != 2 || results[ResultSkipped] != 1 || results[ResultSuppressed] != 1 {
		t.Errorf("results = %v", results)
	}
}

func TestDecoder_Reset(t *testing.T) {
	d, _ := newTestDecoder(DefaultConfig())
	d.FeedFrame("+000100kg")
	d.Reset()
	if _, ok := d.Current(); ok {
		t.Error("Reset should clear the reading")
	}
	if _, ok := d.FeedRaw("+000200kg"); !ok {
		t.Error("Reset should unmute the raw channel")
	}
}

// ─── LineSplitter Tests ─────────────────────────────────────────────────────

func TestLineSplitter(t *testing.T) {
	var s LineSplitter

	if lines := s.Write([]byte("+0012")); len(lines) != 0 {
		t.Fatalf("partial chunk produced %v", lines)
	}
	lines := s.Write([]byte("34kg\r\n+001235kg\r"))
	if len(lines) != 1 || lines[0] != "+001234kg" {
		t.Fatalf("lines = %q", lines)
	}
	lines = s.Write([]byte("\n\r\n"))
	if len(lines) != 2 || lines[0] != "+001235kg" || lines[1] != "" {
		t.Fatalf("lines = %q", lines)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestLineSplitter_BoundsBuffer(t *testing.T) {
	var s LineSplitter
	s.Write([]byte(strings.Repeat("x", maxPending*2)))
	if s.Pending() != maxPending {
		t.Errorf("Pending() = %d, want %d", s.Pending(), maxPending)
	}
	s.Reset()
	if s.Pending() != 0 {
		t.Error("Reset should drop the buffer")
	}
}
