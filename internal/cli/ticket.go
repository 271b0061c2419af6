package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/timbang-id/timbang/internal/app/weighing"
	"github.com/timbang-id/timbang/internal/domain"
)

// ─── Ticket CLI ─────────────────────────────────────────────────────────────
// Manual weighings for when the indicator is offline, plus lookups.

var (
	ticketKind    string
	ticketWeight  int64
	ticketNoted   int64
	ticketPrice   string
	ticketUnit    string
	ticketRebate  string
	ticketSearch  string
	ticketDetails domain.Details
)

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketCreateCmd)
	ticketCmd.AddCommand(ticketFinalizeCmd)
	ticketCmd.AddCommand(ticketPendingCmd)
	ticketCmd.AddCommand(ticketShowCmd)
	ticketCmd.AddCommand(ticketEditCmd)

	ticketCreateCmd.Flags().StringVarP(&ticketKind, "kind", "k", "", "Transaction kind: purchase or sale")
	ticketCreateCmd.Flags().Int64VarP(&ticketWeight, "weight", "w", 0, "First weighing in kg")
	ticketCreateCmd.Flags().Int64Var(&ticketNoted, "noted", 0, "Weight stated on the delivery note in kg")
	ticketCreateCmd.Flags().StringVar(&ticketPrice, "price", "0", "Price per unit")
	ticketCreateCmd.Flags().StringVar(&ticketUnit, "unit", "", "Price unit (default from [station].default_unit)")
	ticketCreateCmd.MarkFlagRequired("kind")   //nolint:errcheck
	ticketCreateCmd.MarkFlagRequired("weight") //nolint:errcheck
	addDetailFlags(ticketCreateCmd)
	addDetailFlags(ticketEditCmd)

	ticketFinalizeCmd.Flags().Int64VarP(&ticketWeight, "weight", "w", 0, "Second weighing in kg")
	ticketFinalizeCmd.Flags().StringVar(&ticketRebate, "rebate", "0", "Rebate percent (0-100)")
	ticketFinalizeCmd.MarkFlagRequired("weight") //nolint:errcheck

	ticketPendingCmd.Flags().StringVarP(&ticketSearch, "q", "q", "", "Filter by party, plate, document or product")
}

func addDetailFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ticketDetails.Counterparty, "party", "", "Supplier or customer")
	cmd.Flags().StringVar(&ticketDetails.Product, "product", "", "Commodity")
	cmd.Flags().StringVar(&ticketDetails.Plate, "plate", "", "Vehicle plate")
	cmd.Flags().StringVar(&ticketDetails.Driver, "driver", "", "Driver name")
	cmd.Flags().StringVar(&ticketDetails.Notes, "notes", "", "Free text")
}

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Create, finalize and inspect weighing tickets",
}

// ─── ticket create ──────────────────────────────────────────────────────────

var ticketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a first weighing",
	Args:  cobra.NoArgs,
	RunE:  runTicketCreate,
}

func runTicketCreate(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseKind(ticketKind)
	if err != nil {
		return err
	}
	price, err := decimal.NewFromString(ticketPrice)
	if err != nil {
		return fmt.Errorf("invalid --price %q", ticketPrice)
	}

	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.tickets.Create(cmd.Context(), weighing.CreateInput{
		Kind:        kind,
		Weight:      ticketWeight,
		NotedWeight: ticketNoted,
		Price:       price,
		Unit:        ticketUnit,
		Details:     ticketDetails,
	})
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), t)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s recorded: %s, first weighing %d kg (id %s)\n",
		t.DocNumber, t.Kind.Label(), t.Stage1Weight, t.ID)
	return nil
}

// ─── ticket finalize ────────────────────────────────────────────────────────

var ticketFinalizeCmd = &cobra.Command{
	Use:   "finalize TICKET_ID",
	Short: "Record the second weighing of a pending ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketFinalize,
}

func runTicketFinalize(cmd *cobra.Command, args []string) error {
	id, err := domain.ParseTicketID(args[0])
	if err != nil {
		return err
	}
	rebate, err := decimal.NewFromString(ticketRebate)
	if err != nil {
		return fmt.Errorf("invalid --rebate %q", ticketRebate)
	}

	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.tickets.Finalize(cmd.Context(), weighing.FinalizeInput{
		TicketID:      id,
		Weight:        ticketWeight,
		RebatePercent: rebate,
	})
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), t)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s finalized: net %d kg\n", t.DocNumber, t.NetWeight)
	printTicket(cmd.OutOrStdout(), t)
	return nil
}

// ─── ticket pending ─────────────────────────────────────────────────────────

var ticketPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List tickets awaiting a second weighing",
	Args:  cobra.NoArgs,
	RunE:  runTicketPending,
}

func runTicketPending(cmd *cobra.Command, args []string) error {
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	tickets, err := st.tickets.Pending(cmd.Context(), ticketSearch)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), tickets)
	}
	if len(tickets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending tickets.")
		return nil
	}
	printTicketTable(cmd.OutOrStdout(), tickets)
	return nil
}

// ─── ticket show ────────────────────────────────────────────────────────────

var ticketShowCmd = &cobra.Command{
	Use:   "show TICKET_ID",
	Short: "Show one ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketShow,
}

func runTicketShow(cmd *cobra.Command, args []string) error {
	id, err := domain.ParseTicketID(args[0])
	if err != nil {
		return err
	}
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.tickets.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	events, err := st.db.SyncEvents(cmd.Context(), id)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"ticket": t,
			"sync":   events,
		})
	}
	printTicket(cmd.OutOrStdout(), t)
	for _, ev := range events {
		line := fmt.Sprintf("Sync:          %s (attempts %d)", ev.Status, ev.Attempts)
		if ev.LastError != "" {
			line += ": " + ev.LastError
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

// ─── ticket edit ────────────────────────────────────────────────────────────

var ticketEditCmd = &cobra.Command{
	Use:   "edit TICKET_ID",
	Short: "Change the descriptive fields of a ticket",
	Long:  `Only the flags given are changed. Weights are never edited.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTicketEdit,
}

func runTicketEdit(cmd *cobra.Command, args []string) error {
	id, err := domain.ParseTicketID(args[0])
	if err != nil {
		return err
	}
	st, err := openStation()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.tickets.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	d := t.Details
	flags := cmd.Flags()
	if flags.Changed("party") {
		d.Counterparty = ticketDetails.Counterparty
	}
	if flags.Changed("product") {
		d.Product = ticketDetails.Product
	}
	if flags.Changed("plate") {
		d.Plate = ticketDetails.Plate
	}
	if flags.Changed("driver") {
		d.Driver = ticketDetails.Driver
	}
	if flags.Changed("notes") {
		d.Notes = ticketDetails.Notes
	}

	t, err = st.tickets.UpdateDetails(cmd.Context(), id, d)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(cmd.OutOrStdout(), t)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s updated\n", t.DocNumber)
	return nil
}

// ─── Output ─────────────────────────────────────────────────────────────────

const cliTimeLayout = "2006-01-02 15:04"

func printTicket(w io.Writer, t *domain.WeighingTicket) {
	fmt.Fprintf(w, "Document:      %s (%s, %s)\n", t.DocNumber, t.Kind.Label(), t.Status)
	fmt.Fprintf(w, "ID:            %s\n", t.ID)
	fmt.Fprintf(w, "Party:         %s\n", t.Counterparty)
	fmt.Fprintf(w, "Plate:         %s\n", t.Plate)
	fmt.Fprintf(w, "Product:       %s\n", t.Product)
	fmt.Fprintf(w, "Weighing 1:    %d kg at %s\n", t.Stage1Weight, t.Stage1At.Format(cliTimeLayout))
	if t.Stage2Weight != nil {
		fmt.Fprintf(w, "Weighing 2:    %d kg at %s\n", *t.Stage2Weight, t.Stage2At.Format(cliTimeLayout))
		fmt.Fprintf(w, "Gross:         %d kg\n", t.GrossWeight())
		fmt.Fprintf(w, "Rebate:        %s%%\n", t.RebatePercent)
	}
	fmt.Fprintf(w, "Net:           %d kg\n", t.NetWeight)
	fmt.Fprintf(w, "Noted:         %d kg (difference %d)\n", t.NotedWeight, t.WeightDifference)
	if !t.Price.IsZero() {
		fmt.Fprintf(w, "Price:         %s/%s, total %d\n", t.Price, t.Unit, t.TotalPrice())
	}
}

func printTicketTable(w io.Writer, tickets []domain.WeighingTicket) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDOCUMENT\tSTATUS\tPARTY\tPLATE\tWEIGHING 1\tNET\tRECORDED")
	for _, t := range tickets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			t.ID, t.DocNumber, t.Status, t.Counterparty, t.Plate,
			t.Stage1Weight, t.NetWeight, t.RecordedAt().Format(cliTimeLayout))
	}
	tw.Flush()
}
