package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pltanton/insightloop/internal/cron"
	"github.com/pltanton/insightloop/internal/logger"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run configured research schedules in the foreground",
	RunE:  runSchedule,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(cfg.Schedules) == 0 {
			fmt.Fprintln(out, hintStyle.Render("No schedules configured."))
			return nil
		}
		for _, s := range cfg.Schedules {
			state := "enabled"
			if !s.Enabled {
				state = "paused"
			}
			fmt.Fprintf(out, "%s  %s  [%s]  %s\n", titleStyle.Render(s.Name), s.Schedule, state, s.Query)
		}
		return nil
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run one configured schedule now",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleOnce,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleListCmd, scheduleRunCmd)
}

func newScheduler(cmd *cobra.Command) (*cron.Scheduler, *app, error) {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return nil, nil, err
	}
	sched := cron.NewScheduler(a.pipeline, a.store, logger.Default())
	if err := sched.Load(cfg.Schedules); err != nil {
		a.Close()
		return nil, nil, err
	}
	return sched, a, nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no schedules configured in %s", configFile())
	}
	sched, a, err := newScheduler(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sched.Start()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	sched.Stop()
	return nil
}

func runScheduleOnce(cmd *cobra.Command, args []string) error {
	sched, a, err := newScheduler(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := sched.FindJob(args[0])
	if err != nil {
		return fmt.Errorf("schedule %q not found", args[0])
	}
	done, err := sched.RunNow(cmd.Context(), job.ID)
	if err != nil {
		return err
	}
	if done.LastError != "" {
		return fmt.Errorf("schedule %q failed: %s", job.Name, done.LastError)
	}
	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("Saved report #%d for %q", done.LastReportID, done.Query)))
	return nil
}
