// Package cmd defines the talq command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "talq",
	Short: "Talq - chat with your CSV files",
	Long: `Talq is a chat server for tabular data. Attach CSV files to a session
and ask questions in plain language; the agent answers by generating and
executing SQL against your data.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
