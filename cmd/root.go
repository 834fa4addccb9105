package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "nimble-sync",
	Short: "Synchronizes a local mod tree against an HTTP-served repository",
	Long:  `A content-addressed mod synchronizer: reconciles a local mod tree with a remote repository manifest, downloading only the files that differ.`,
}

// Execute initializes the root command tree and delegates to Cobra for
// argument parsing and subcommand dispatch.
func Execute() {
	// Disable pterm rich output and enforce RawOutput when stdout is not a terminal (e.g., CI, piped output)
	if !term.IsTerminal(int(os.Stdout.Fd())) || os.Getenv("NO_COLOR") != "" {
		pterm.DisableStyling()
		pterm.RawOutput = true
	}
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(genSRFCmd)
}
