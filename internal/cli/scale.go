package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timbang-id/timbang/internal/infra/framing"
	"github.com/timbang-id/timbang/internal/infra/serialport"
)

// Overridden in tests; nil keeps the serial defaults.
var (
	portLister serialport.Lister
	portOpener serialport.Opener
)

var (
	watchPort  string
	watchBaud  int
	watchCount int
)

func init() {
	rootCmd.AddCommand(scaleCmd)
	scaleCmd.AddCommand(scalePortsCmd)
	scaleCmd.AddCommand(scaleWatchCmd)

	scaleWatchCmd.Flags().StringVarP(&watchPort, "port", "p", "", "Serial port (default [scale].port)")
	scaleWatchCmd.Flags().IntVarP(&watchBaud, "baud", "b", 0, "Baud rate (default [scale].baud_rate)")
	scaleWatchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "Stop after this many readings, 0 to run until interrupted")
}

var scaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Inspect the weighing indicator",
}

func scaleOptions(extra ...serialport.Option) []serialport.Option {
	var opts []serialport.Option
	if portLister != nil {
		opts = append(opts, serialport.WithLister(portLister))
	}
	if portOpener != nil {
		opts = append(opts, serialport.WithOpener(portOpener))
	}
	return append(opts, extra...)
}

// ─── scale ports ────────────────────────────────────────────────────────────

var scalePortsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE:  runScalePorts,
}

func runScalePorts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newQuietLogger(cfg)
	if err != nil {
		return err
	}
	m := serialport.New(serialport.DefaultConfig(), framing.NewDecoder(framing.DefaultConfig()), log, scaleOptions()...)
	ports, err := m.List()
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"ports": ports})
	}
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
		return nil
	}
	for _, p := range ports {
		marker := " "
		if p == cfg.Scale.Port {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, p)
	}
	return nil
}

// ─── scale watch ────────────────────────────────────────────────────────────

var scaleWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print live readings from the indicator",
	Long: `Open the indicator port and print each accepted reading. Do not run
this while 'timbang serve' holds the same port.`,
	Args: cobra.NoArgs,
	RunE: runScaleWatch,
}

var errPortLost = errors.New("indicator disconnected")

func runScaleWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := watchPort
	if path == "" {
		path = cfg.Scale.Port
	}
	if path == "" {
		return fmt.Errorf("no port given: pass --port or set [scale].port")
	}
	baud := watchBaud
	if baud <= 0 {
		baud = cfg.Scale.BaudRate
	}
	log, err := newQuietLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	readings := make(chan framing.Reading, 16)
	dec := framing.NewDecoder(framing.Config{
		FallbackWindow: cfg.Scale.Fallback(),
		OnReading: func(r framing.Reading) {
			select {
			case readings <- r:
			default:
			}
		},
	})
	m := serialport.New(serialport.DefaultConfig(), dec, log, scaleOptions(
		serialport.WithStatusHook(func(st serialport.Status) {
			if !st.Connected && st.LastError != "" {
				cancel(fmt.Errorf("%w: %s", errPortLost, st.LastError))
			}
		}),
	)...)
	if err := m.Connect(path, baud); err != nil {
		return err
	}
	defer m.Close()

	out := cmd.OutOrStdout()
	if !jsonFlag {
		fmt.Fprintf(out, "Watching %s at %d baud. Ctrl-C to stop.\n", path, baud)
	}
	seen := 0
	for {
		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); errors.Is(cause, errPortLost) {
				return cause
			}
			return nil
		case r := <-readings:
			if jsonFlag {
				if err := printJSON(out, r); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s  %8d kg  %-5s  %q\n", r.At.Format("15:04:05.000"), r.Weight, r.Channel, r.Raw)
			}
			seen++
			if watchCount > 0 && seen >= watchCount {
				return nil
			}
		}
	}
}
