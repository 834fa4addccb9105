package cmd

import (
	"fmt"

	"nimble-sync/internal/nimble"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var genSRFCmd = &cobra.Command{
	Use:   "gen-srf",
	Short: "Regenerate SRFs and the mod cache under a local path",
	RunE:  runGenSRF,
}

func init() {
	genSRFCmd.Flags().String("path", "", "local base directory containing @-prefixed mod directories")
	_ = genSRFCmd.MarkFlagRequired("path")
}

func runGenSRF(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")

	spinner, _ := pterm.DefaultSpinner.Start("rebuilding mod cache")
	err := nimble.GenSRF(path)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("gen-srf: %w", err)
	}

	pterm.Success.Printfln("regenerated SRFs and cache under %s", path)
	return nil
}
