// Package cli defines the tally command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:5000"

var baseURL string

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Terminal client for the tally finance and notes backend",
	Long: `tally keeps a transactions list and a notes list in sync with a
backend: optimistic edits, debounced saves, drag-style reordering, and
soft-delete undo, all from the terminal.

Run with no arguments to open the interactive UI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUI(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (default from login, else "+defaultBaseURL+")")
	rootCmd.AddCommand(uiCmd, serveCmd, loginCmd, logoutCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
