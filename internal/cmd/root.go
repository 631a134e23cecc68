// Package cmd holds the tripplanner command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tripplanner",
	Short: "Live Trip Mode service for the AI trip planner",
	Long: `tripplanner serves Live Trip Mode: day-by-day navigation of a saved
trip, completion tracking, activity notes and AI-assisted activity
insertion, backed by the trip planner API.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./tripplanner.yaml or $HOME/.config/tripplanner/tripplanner.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
