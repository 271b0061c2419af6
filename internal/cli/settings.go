package cli

import (
	"fmt"

	"github.com/go-playground/validator"
	"github.com/spf13/cobra"

	"github.com/timbang-id/timbang/internal/api"
	"github.com/timbang-id/timbang/internal/domain"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRetryCmd)
}

// ─── settings ───────────────────────────────────────────────────────────────

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and change station settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [KEY]",
	Short: "Print one setting, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsGet,
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		v, err := st.db.Setting(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(cmd.OutOrStdout(), map[string]string{args[0]: v})
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	}

	values, err := st.db.Settings(cmd.Context())
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), values)
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "KEY\tVALUE")
	for _, k := range api.SettingKeys() {
		fmt.Fprintf(tw, "%s\t%s\n", k, values[k])
	}
	tw.Flush()
	return nil
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Save one setting",
	Long: `Save one setting. Known keys:

  google_script_url   spreadsheet web app URL; empty falls back to [sync].url
  company_name        printed on tickets
  company_address
  company_phone`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	values := map[string]string{args[0]: args[1]}
	if err := api.NormalizeSettings(validator.New(), values); err != nil {
		return err
	}
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.db.SaveSettings(cmd.Context(), values); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s saved\n", args[0])
	return nil
}

// ─── sync ───────────────────────────────────────────────────────────────────

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect the spreadsheet outbox",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count outbox events by state",
	Args:  cobra.NoArgs,
	RunE:  runSyncStatus,
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.db.SyncCounts(cmd.Context())
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), counts)
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "STATE\tEVENTS")
	for _, s := range []domain.SyncStatus{domain.SyncQueued, domain.SyncSending, domain.SyncDelivered, domain.SyncFailed} {
		fmt.Fprintf(tw, "%s\t%d\n", s, counts[s])
	}
	tw.Flush()
	return nil
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed outbox events",
	Long: `Move FAILED events back to QUEUED. A running daemon picks them up on
its next poll.`,
	Args: cobra.NoArgs,
	RunE: runSyncRetry,
}

func runSyncRetry(cmd *cobra.Command, args []string) error {
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.db.RetryFailedSync(cmd.Context())
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), map[string]int64{"requeued": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %d event(s) requeued\n", n)
	return nil
}
