package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nimble-sync/internal/nimble"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile a local mod tree against a remote repository",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().String("repo-url", "", "base URL of the repository (must serve repo.json)")
	syncCmd.Flags().String("local-path", "", "local base directory containing @-prefixed mod directories")
	syncCmd.Flags().Bool("dry-run", false, "compute and print the sync plan without downloading or deleting anything")
	syncCmd.Flags().String("metrics-addr", "", "optional address to serve Prometheus metrics on, e.g. :9090")
	_ = syncCmd.MarkFlagRequired("repo-url")
	_ = syncCmd.MarkFlagRequired("local-path")
}

func runSync(cmd *cobra.Command, args []string) error {
	repoURL, _ := cmd.Flags().GetString("repo-url")
	localPath, _ := cmd.Flags().GetString("local-path")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		go func() {
			if err := nimble.StartMetricsServer(ctx, metricsAddr); err != nil {
				pterm.Warning.Printfln("metrics server stopped: %v", err)
			}
		}()
	}

	client := nimble.NewHTTPClient()
	progress := newCLIProgress()

	result, err := nimble.Sync(ctx, client, repoURL, localPath, dryRun, progress)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	progress.finish(result)

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			pterm.Error.Println(e)
		}
		return fmt.Errorf("sync completed with %d error(s)", len(result.Errors))
	}

	return nil
}

// cliProgress renders sync events. It branches explicitly on pterm.RawOutput
// rather than relying on the
// spinner to degrade gracefully: a spinner writing control codes into a
// pipe or CI log is its own kind of bug.
type cliProgress struct {
	spinner *pterm.SpinnerPrinter
}

func newCLIProgress() *cliProgress {
	if pterm.RawOutput {
		pterm.Println("Scanning repository...")
		return &cliProgress{}
	}
	spinner, _ := pterm.DefaultSpinner.Start("scanning repository")
	return &cliProgress{spinner: spinner}
}

func (p *cliProgress) CandidateFound(mod nimble.RepoMod) {
	if p.spinner != nil {
		p.spinner.UpdateText(fmt.Sprintf("candidate: %s", mod.ModName))
		return
	}
	pterm.Info.Println("candidate:", mod.ModName)
}

func (p *cliProgress) DownloadStarting(cmd nimble.DownloadCommand) {
	if p.spinner != nil {
		p.spinner.UpdateText(fmt.Sprintf("downloading %s", cmd.File))
		return
	}
	pterm.Println("downloading", cmd.File)
}

func (p *cliProgress) DownloadFinished(cmd nimble.DownloadCommand, err error) {
	if err != nil {
		pterm.Error.Println(cmd.File+":", err)
		return
	}
	pterm.Success.Println(cmd.File)
}

func (p *cliProgress) DeletionStarting(path string) {
	pterm.Info.Println("removing", path)
}

func (p *cliProgress) finish(result *nimble.SyncResult) {
	if p.spinner != nil {
		p.spinner.Stop()
	}
	if result.DryRun {
		pterm.Info.Printf("dry run: %d candidate mod(s), %d download(s), %d deletion(s) planned\n",
			len(result.Candidates), len(result.Downloads), len(result.Deletions))
		return
	}
	pterm.Success.Printf("sync complete: %d download(s), %d deletion(s)\n", len(result.Downloads), len(result.Deletions))
}
