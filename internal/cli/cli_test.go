package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/serialport"
)

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue) //nolint:errcheck
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--home", home}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, home string, args ...string) string {
	t.Helper()
	out, err := run(t, home, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestVersionAndInit(t *testing.T) {
	home := t.TempDir()

	if out := mustRun(t, home, "version"); !strings.HasPrefix(out, "timbang ") {
		t.Errorf("version output = %q", out)
	}

	out := mustRun(t, home, "init")
	path := filepath.Join(home, "config.toml")
	if !strings.Contains(out, path) {
		t.Errorf("init output = %q, want it to name %s", out, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := run(t, home, "init"); err == nil {
		t.Error("second init should refuse to overwrite")
	}
}

func TestTicketWorkflow(t *testing.T) {
	home := t.TempDir()

	out := mustRun(t, home, "--json", "ticket", "create",
		"--kind", "purchase", "--weight", "1000", "--noted", "550", "--price", "2000",
		"--party", "PT Sawit", "--plate", "BK 1234 XY")
	var created domain.WeighingTicket
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode create output: %v\n%s", err, out)
	}
	if !strings.HasPrefix(created.DocNumber, "PURCH-") {
		t.Errorf("DocNumber = %q, want PURCH- prefix", created.DocNumber)
	}
	if created.Status != domain.StatusPending || created.Stage1Weight != 1000 {
		t.Errorf("created = %+v", created)
	}
	id := created.ID.String()

	if out := mustRun(t, home, "ticket", "pending"); !strings.Contains(out, created.DocNumber) {
		t.Errorf("pending output missing %s:\n%s", created.DocNumber, out)
	}
	if out := mustRun(t, home, "ticket", "pending", "-q", "nobody"); !strings.Contains(out, "No pending tickets") {
		t.Errorf("filtered pending output = %q", out)
	}

	// Edit touches only the flags given.
	mustRun(t, home, "ticket", "edit", id, "--driver", "Budi")
	out = mustRun(t, home, "--json", "ticket", "show", id)
	var shown struct {
		Ticket domain.WeighingTicket `json:"ticket"`
		Sync   []domain.SyncEvent    `json:"sync"`
	}
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode show output: %v\n%s", err, out)
	}
	if shown.Ticket.Driver != "Budi" || shown.Ticket.Counterparty != "PT Sawit" {
		t.Errorf("details after edit = %+v", shown.Ticket.Details)
	}
	if len(shown.Sync) != 0 {
		t.Errorf("pending ticket has %d sync events, want 0", len(shown.Sync))
	}

	out = mustRun(t, home, "ticket", "finalize", id, "--weight", "400", "--rebate", "5")
	if !strings.Contains(out, "net 570 kg") {
		t.Errorf("finalize output = %q, want net 570 kg", out)
	}
	if !strings.Contains(out, "difference 20") {
		t.Errorf("finalize output should show the noted difference:\n%s", out)
	}
	if _, err := run(t, home, "ticket", "finalize", id, "--weight", "300"); err == nil {
		t.Error("finalizing twice should fail")
	}

	out = mustRun(t, home, "history")
	if !strings.Contains(out, created.DocNumber) || !strings.Contains(out, "Net 570 kg") {
		t.Errorf("history output:\n%s", out)
	}
	if out := mustRun(t, home, "history", "--status", "pending"); !strings.Contains(out, "No tickets match") {
		t.Errorf("pending history output = %q", out)
	}

	out = mustRun(t, home, "--json", "report", "stats", "--year", "0")
	var report struct {
		Stats domain.ReportStats `json:"stats"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Stats.TotalTransactions != 1 || report.Stats.TotalNet != 570 {
		t.Errorf("stats = %+v, want 1 transaction, 570 net", report.Stats)
	}
	if out := mustRun(t, home, "report", "parties", "--year", "0"); !strings.Contains(out, "PT Sawit") {
		t.Errorf("parties output:\n%s", out)
	}

	out = mustRun(t, home, "--json", "sync", "status")
	var counts map[string]int64
	if err := json.Unmarshal([]byte(out), &counts); err != nil {
		t.Fatalf("decode sync status: %v\n%s", err, out)
	}
	if counts["QUEUED"] != 1 {
		t.Errorf("QUEUED = %d, want 1", counts["QUEUED"])
	}
	if out := mustRun(t, home, "sync", "retry"); !strings.Contains(out, "0 event(s) requeued") {
		t.Errorf("retry output = %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	home := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"missing kind", []string{"ticket", "create", "--weight", "100"}},
		{"bad kind", []string{"ticket", "create", "--kind", "rent", "--weight", "100"}},
		{"negative noted weight", []string{"ticket", "create", "--kind", "sale", "--weight", "100", "--noted", "-5"}},
		{"bad price", []string{"ticket", "create", "--kind", "sale", "--weight", "100", "--price", "abc"}},
		{"bad id", []string{"ticket", "show", "abc"}},
		{"unknown id", []string{"ticket", "show", "12345"}},
		{"bad date", []string{"history", "--from", "15/01/2025"}},
		{"bad status", []string{"history", "--status", "lost"}},
		{"watch without port", []string{"scale", "watch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out, err := run(t, home, tt.args...); err == nil {
				t.Errorf("%v succeeded:\n%s", tt.args, out)
			}
		})
	}
}

func TestSettingsCommands(t *testing.T) {
	home := t.TempDir()

	mustRun(t, home, "settings", "set", "company_name", "  CV Timbang Jaya  ")
	if out := mustRun(t, home, "settings", "get", "company_name"); strings.TrimSpace(out) != "CV Timbang Jaya" {
		t.Errorf("get company_name = %q", out)
	}
	out := mustRun(t, home, "settings", "get")
	for _, k := range []string{"google_script_url", "company_name", "company_phone"} {
		if !strings.Contains(out, k) {
			t.Errorf("settings listing missing %s:\n%s", k, out)
		}
	}

	if _, err := run(t, home, "settings", "set", "theme", "dark"); err == nil {
		t.Error("unknown key should be rejected")
	}
	if _, err := run(t, home, "settings", "set", "google_script_url", "not a url"); err == nil {
		t.Error("invalid URL should be rejected")
	}
}

// ─── Scale ──────────────────────────────────────────────────────────────────

type fakePort struct {
	chunks chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{chunks: make(chan []byte, 4), closed: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case c, ok := <-p.chunks:
		if !ok {
			return 0, io.ErrUnexpectedEOF
		}
		return copy(b, c), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetDTR(bool) error { return nil }
func (p *fakePort) SetRTS(bool) error { return nil }

func withScale(t *testing.T, port *fakePort) {
	t.Helper()
	portLister = func() ([]string, error) { return []string{"/dev/ttyUSB0", "/dev/ttyS0"}, nil }
	portOpener = func(path string, baud int) (serialport.Port, error) { return port, nil }
	t.Cleanup(func() {
		portLister = nil
		portOpener = nil
	})
}

func TestScalePorts(t *testing.T) {
	withScale(t, newFakePort())
	out := mustRun(t, t.TempDir(), "scale", "ports")
	if strings.Index(out, "/dev/ttyS0") > strings.Index(out, "/dev/ttyUSB0") {
		t.Errorf("ports not sorted:\n%s", out)
	}
}

func TestScaleWatch_StopsAfterCount(t *testing.T) {
	port := newFakePort()
	port.chunks <- []byte("+001234kg\r\n")
	withScale(t, port)

	out := mustRun(t, t.TempDir(), "scale", "watch", "--port", "/dev/ttyUSB0", "--count", "1")
	if !strings.Contains(out, "1234 kg") {
		t.Errorf("watch output = %q, want a 1234 kg reading", out)
	}
}

func TestScaleWatch_Disconnect(t *testing.T) {
	port := newFakePort()
	port.chunks <- []byte("+000500kg\r\n")
	close(port.chunks)
	withScale(t, port)

	_, err := run(t, t.TempDir(), "scale", "watch", "--port", "/dev/ttyUSB0")
	if err == nil || !strings.Contains(err.Error(), "indicator disconnected") {
		t.Errorf("watch error = %v, want indicator disconnected", err)
	}
}
