// Package cli wires the wayfinding engine into the precinct-nav command.
package cli

import (
	"fmt"
	"os"

	"precinct-nav/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "precinct-nav",
	Short: "Pedestrian wayfinding for a campus or precinct",
	Long: `precinct-nav builds walkable graphs from traced maps and serves outdoor
and indoor routes over HTTP.

Configuration is read from the environment, optionally seeded from a .env
file in the working directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		l, err := c.NewLogger()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, buildCmd, validateCmd, routeCmd, hashPasswordCmd)
}
