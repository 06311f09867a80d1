package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve research and history tools over MCP (stdio)",
	Long: `Run an MCP server on stdin/stdout exposing two tools:

  research        run a research query and return a Markdown report
  history_search  list or look up stored reports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol; logs go to stderr or the log file only.
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		return mcpserver.ServeStdio(mcpserver.NewTools(a.pipeline, a.store, logger.Default()))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
