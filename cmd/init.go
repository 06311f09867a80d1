package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pltanton/insightloop/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	// The config may not exist or be valid yet.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile()
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Config written to "+path))
		fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("Set TAVILY_API_KEY or SEARXNG_URL, then run: insightloop research \"<query>\""))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}
