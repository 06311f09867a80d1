package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/report"
	"github.com/pltanton/insightloop/internal/research"
)

var (
	researchOut    string
	researchRating int
	researchNoSave bool
)

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Research a query and print insights",
	Example: `  insightloop research "Compare Dropbox vs Box pricing"
  insightloop research --out report.md --rate 4 "Notion vs Obsidian"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)
	researchCmd.Flags().StringVarP(&researchOut, "out", "o", "", "Write a Markdown report to this file")
	researchCmd.Flags().IntVar(&researchRating, "rate", 0, "Rate the report 1-5 when saving it")
	researchCmd.Flags().BoolVar(&researchNoSave, "no-save", false, "Do not store the report in history")
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if err := history.ValidateRating(researchRating); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	a, err := newApp(ctx, !researchNoSave, research.WithObserver(func(step string) {
		fmt.Fprintln(out, stepStyle.Render("› "+step))
	}))
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.Run(ctx, query)
	if err != nil {
		return err
	}
	printResult(cmd, res)

	if a.store != nil {
		id, err := a.store.Save(context.WithoutCancel(ctx), history.ParamsFromResult(res, researchRating))
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("failed to save report: "+err.Error()))
		} else {
			fmt.Fprintln(out, hintStyle.Render(fmt.Sprintf("Saved as report #%d", id)))
		}
	}

	if researchOut != "" {
		if err := writeReportFile(researchOut, report.FromResult(res)); err != nil {
			return err
		}
		fmt.Fprintln(out, hintStyle.Render("Report written to "+researchOut))
	}
	return nil
}

func printResult(cmd *cobra.Command, res *research.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("Research: "+res.Query))
	fmt.Fprintln(out)
	fmt.Fprintln(out, sectionStyle.Render("Key Insights"))
	fmt.Fprintln(out, strings.TrimSpace(res.Insights))
	fmt.Fprintln(out)

	if strings.TrimSpace(res.ComparisonTable) != "" {
		fmt.Fprintln(out, sectionStyle.Render("Comparison Table"))
		fmt.Fprintln(out, res.ComparisonTable)
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, sectionStyle.Render("Sources"))
	if len(res.Links) == 0 {
		fmt.Fprintln(out, hintStyle.Render("No sources available."))
	}
	for i, l := range res.Links {
		fmt.Fprintf(out, "%d. %s\n", i+1, l)
	}
	fmt.Fprintln(out, hintStyle.Render(fmt.Sprintf("Finished in %s", res.Duration.Round(time.Millisecond))))
}

func writeReportFile(path string, doc report.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Write(f, doc); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
