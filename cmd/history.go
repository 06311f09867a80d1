package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/report"
)

var (
	historyLimit  int
	historyFilter string
	historyOut    string
	historyYes    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past research reports",
	RunE:  runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent queries, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id|query>",
	Short: "Show a stored report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistoryShow,
}

var historyRateCmd = &cobra.Command{
	Use:   "rate <id> <0-5>",
	Short: "Rate a stored report",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryRate,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored report",
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyRateCmd, historyClearCmd)

	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultListLimit, "Number of queries to list")
		c.Flags().StringVarP(&historyFilter, "filter", "f", "", "Only list queries containing this text (case-sensitive)")
	}
	historyShowCmd.Flags().StringVarP(&historyOut, "out", "o", "", "Write the report as Markdown to this file")
	historyClearCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "Confirm deletion")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	queries, err := store.ListRecent(cmd.Context(), historyLimit, historyFilter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(queries) == 0 {
		fmt.Fprintln(out, hintStyle.Render("No research history yet."))
		return nil
	}
	fmt.Fprintln(out, titleStyle.Render("Recent research"))
	for i, q := range queries {
		fmt.Fprintf(out, "%2d. %s\n", i+1, q)
	}
	return nil
}

// lookupReport accepts a numeric id or the exact query text.
// lookupReport resolves arg as a report ID first, then as an exact query, so
// numeric queries such as "2024" stay reachable.
func lookupReport(cmd *cobra.Command, store history.Store, arg string) (*history.Report, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		rep, err := store.Get(cmd.Context(), id)
		if !errors.Is(err, history.ErrNotFound) {
			return rep, err
		}
	}
	rep, err := store.GetByQuery(cmd.Context(), arg)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, fmt.Errorf("%w: query %q", history.ErrNotFound, arg)
	}
	return rep, nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := lookupReport(cmd, store, strings.Join(args, " "))
	if err != nil {
		return err
	}
	doc := report.FromReport(rep)
	if historyOut != "" {
		if err := writeReportFile(historyOut, doc); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("Report written to "+historyOut))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, hintStyle.Render(fmt.Sprintf("Report #%d, %s, rating %d/%d",
		rep.ID, rep.CreatedAt.Local().Format("2006-01-02 15:04"), rep.Rating, history.MaxRating)))
	fmt.Fprint(out, report.Markdown(doc))
	return nil
}

func runHistoryRate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid report id %q", args[0])
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid rating %q", args[1])
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UpdateRating(cmd.Context(), id, rating); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("Report #%d rated %d/%d", id, rating, history.MaxRating)))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	if !historyYes {
		return fmt.Errorf("refusing to delete history without --yes")
	}
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ClearAll(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("History cleared."))
	return nil
}
