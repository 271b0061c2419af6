// Package cli implements the timbang command line.
package cli

import (
	"encoding/json"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/timbang-id/timbang/internal/api"
	"github.com/timbang-id/timbang/internal/app/weighing"
	"github.com/timbang-id/timbang/internal/daemon"
	"github.com/timbang-id/timbang/internal/infra/sqlite"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var (
	homeFlag   string
	configFlag string
	jsonFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "timbang",
	Short: "Weighbridge operator station",
	Long: `timbang records two-stage truck weighings from a serial weighing
indicator, numbers purchase and sale tickets per month, and pushes
finalized tickets to a spreadsheet.

Run 'timbang serve' for the station daemon. The other commands work on
the local database directly and are safe to use while it runs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "Station home directory (default $TIMBANG_HOME or ~/.timbang)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default <home>/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of tables")
}

// Execute runs the root command.
func Execute() error {
	api.Version = Version
	return rootCmd.Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func stationHome() string {
	if homeFlag != "" {
		return homeFlag
	}
	return daemon.Home()
}

func loadConfig() (daemon.Config, error) {
	return daemon.LoadConfig(stationHome(), configFlag)
}

// station is the offline view of the local database.
type station struct {
	cfg     daemon.Config
	log     *zap.Logger
	db      *sqlite.DB
	tickets *weighing.Service
}

func openStation() (*station, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newQuietLogger(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, err
	}
	tickets, err := daemon.NewTicketService(cfg.Offline(), db, log, weighing.Hooks{})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &station{cfg: cfg, log: log, db: db, tickets: tickets}, nil
}

func (s *station) Close() {
	s.db.Close()
	s.log.Sync() //nolint:errcheck
}

// newQuietLogger keeps one-shot commands to warnings unless the config
// asks for debug output.
func newQuietLogger(cfg daemon.Config) (*zap.Logger, error) {
	lc := cfg.Log
	if lc.Level != "debug" {
		lc.Level = "warn"
	}
	return daemon.NewLogger(lc)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
