package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/logger"
)

var (
	logLevel   string
	configPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "insightloop",
	Short: "Autonomous web research agent",
	Long: `InsightLoop searches the web for a query, reads the top pages and
summarizes them into key insights and a comparison table.

Commands:
  insightloop research <query>   Run one research query
  insightloop history            Browse, rate and export past reports
  insightloop serve              Run the web UI and HTTP API
  insightloop mcp                Serve research tools over MCP (stdio)
  insightloop schedule           Re-run configured queries on cron schedules`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded

		lvl := cfg.Logging.Level
		if cmd.Flags().Changed("log") {
			lvl = logLevel
		}
		level, err := logger.ParseLevel(lvl)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		logger.SetFile(cfg.Logging.File)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default .insightloop.yaml next to the executable)")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.ConfigPath()
}
