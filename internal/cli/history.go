package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/timbang-id/timbang/internal/domain"
)

var (
	historyFrom     string
	historyTo       string
	historySearch   string
	historyKind     string
	historyStatus   string
	historyPage     int
	historyPageSize int

	reportYear  int
	reportMonth int
	reportKind  string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportStatsCmd)
	reportCmd.AddCommand(reportPartiesCmd)

	f := historyCmd.Flags()
	f.StringVar(&historyFrom, "from", "", "First date, YYYY-MM-DD")
	f.StringVar(&historyTo, "to", "", "Last date, YYYY-MM-DD")
	f.StringVarP(&historySearch, "q", "q", "", "Filter by party, plate, document or product")
	f.StringVar(&historyKind, "kind", "", "purchase or sale")
	f.StringVar(&historyStatus, "status", "", "pending or finalized")
	f.IntVar(&historyPage, "page", 1, "Page number")
	f.IntVar(&historyPageSize, "page-size", 20, "Tickets per page")

	now := time.Now()
	for _, c := range []*cobra.Command{reportStatsCmd, reportPartiesCmd} {
		c.Flags().IntVar(&reportYear, "year", now.Year(), "Year, 0 for all time")
		c.Flags().IntVar(&reportMonth, "month", 0, "Month within the year, 0 for the whole year")
	}
	reportPartiesCmd.Flags().StringVar(&reportKind, "kind", "", "purchase or sale")
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded tickets",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	f := domain.HistoryFilter{
		Search:   historySearch,
		Page:     historyPage,
		PageSize: historyPageSize,
	}
	var err error
	if f.From, err = parseDate("from", historyFrom); err != nil {
		return err
	}
	if f.To, err = parseDate("to", historyTo); err != nil {
		return err
	}
	if historyKind != "" {
		if f.Kind, err = domain.ParseKind(historyKind); err != nil {
			return err
		}
	}
	switch historyStatus {
	case "":
	case "pending", "PENDING":
		f.Status = domain.StatusPending
	case "finalized", "FINALIZED":
		f.Status = domain.StatusFinalized
	default:
		return fmt.Errorf("invalid --status %q", historyStatus)
	}

	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	items, total, err := st.db.History(cmd.Context(), f)
	if err != nil {
		return err
	}
	sum, err := st.db.HistorySummary(cmd.Context(), f)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"items":   items,
			"total":   total,
			"summary": sum,
		})
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No tickets match.")
		return nil
	}
	printTicketTable(out, items)
	f.Normalize()
	pages := (total + int64(f.PageSize) - 1) / int64(f.PageSize)
	fmt.Fprintf(out, "\nPage %d of %d, %d tickets. Net %d kg, difference %d kg.\n",
		f.Page, pages, total, sum.TotalNet, sum.TotalDifference)
	return nil
}

func parseDate(flag, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q, want YYYY-MM-DD", flag, s)
	}
	return &t, nil
}

// ─── report ─────────────────────────────────────────────────────────────────

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Totals over finalized tickets",
}

var reportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Transaction count and net weight for a period",
	Args:  cobra.NoArgs,
	RunE:  runReportStats,
}

func runReportStats(cmd *cobra.Command, args []string) error {
	p := domain.ReportPeriod{Year: reportYear, Month: reportMonth}
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.db.ReportStats(cmd.Context(), p)
	if err != nil {
		return err
	}
	chart, err := st.db.ReportChart(cmd.Context(), p)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"stats": stats,
			"chart": chart,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Period:        %s\n", periodLabel(p))
	fmt.Fprintf(out, "Transactions:  %d\n", stats.TotalTransactions)
	fmt.Fprintf(out, "Net:           %d kg\n", stats.TotalNet)
	fmt.Fprintf(out, "Difference:    %d kg\n", stats.TotalDifference)
	if len(chart) > 0 {
		fmt.Fprintln(out)
		tw := newTable(out)
		fmt.Fprintln(tw, "BUCKET\tKIND\tNET")
		for _, pt := range chart {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", pt.Label, pt.Kind.Label(), pt.TotalNet)
		}
		tw.Flush()
	}
	return nil
}

var reportPartiesCmd = &cobra.Command{
	Use:   "parties",
	Short: "Top suppliers or customers by net weight",
	Args:  cobra.NoArgs,
	RunE:  runReportParties,
}

func runReportParties(cmd *cobra.Command, args []string) error {
	p := domain.ReportPeriod{Year: reportYear, Month: reportMonth}
	var kind domain.Kind
	if reportKind != "" {
		var err error
		if kind, err = domain.ParseKind(reportKind); err != nil {
			return err
		}
	}
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	parties, err := st.db.ReportParties(cmd.Context(), p, kind)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), parties)
	}
	if len(parties) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No finalized tickets in", periodLabel(p))
		return nil
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "PARTY\tTICKETS\tNET\tDIFFERENCE")
	for _, ps := range parties {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", ps.Counterparty, ps.TotalTransactions, ps.TotalNet, ps.TotalDifference)
	}
	tw.Flush()
	return nil
}

func periodLabel(p domain.ReportPeriod) string {
	switch {
	case p.Year == 0:
		return "all time"
	case p.Month == 0:
		return fmt.Sprintf("%d", p.Year)
	default:
		return fmt.Sprintf("%d-%02d", p.Year, p.Month)
	}
}
