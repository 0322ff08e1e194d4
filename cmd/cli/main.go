package main

import (
	"fmt"
	"os"

	"github.com/emiliaharju/whodunit/cmd/cli/session"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func init() {
	// The .env file is optional; the environment may already be set.
	_ = godotenv.Load()
	rootCmd.AddGroup(session.Group)
	rootCmd.AddCommand(session.Seed)
	rootCmd.AddCommand(session.List)
	rootCmd.AddCommand(session.Show)
}

var rootCmd = &cobra.Command{
	Use:  "whodunit-cli",
	Long: `Command line utilities for the whodunit session engine`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
