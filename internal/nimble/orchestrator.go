package nimble

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// SyncResult summarizes one sync run for the caller to report.
type SyncResult struct {
	Candidates []RepoMod
	Downloads  []DownloadCommand
	Deletions  []string
	DryRun     bool
	Errors     []error
}

// Progress receives incremental sync events so the CLI layer can render
// them without the orchestrator knowing anything about pterm or TTYs.
type Progress interface {
	CandidateFound(mod RepoMod)
	DownloadStarting(cmd DownloadCommand)
	DownloadFinished(cmd DownloadCommand, err error)
	DeletionStarting(path string)
}

// NoopProgress discards every event; used when the caller has no UI.
type NoopProgress struct{}

func (NoopProgress) CandidateFound(RepoMod)                  {}
func (NoopProgress) DownloadStarting(DownloadCommand)        {}
func (NoopProgress) DownloadFinished(DownloadCommand, error) {}
func (NoopProgress) DeletionStarting(string)                 {}

// Sync drives the full repo-fetch → diff → download → rescan → persist
// sequence described for the sync orchestrator. On dry-run it stops after
// computing the plan: nothing is deleted, downloaded or rescanned, and the
// cache is not saved. Opening the cache happens first, though, so when no
// cache file exists the full rebuild still writes a mod.srf into each
// "@"-prefixed mod directory, dry-run or not.
func Sync(ctx context.Context, client *http.Client, repoURL, localBase string, dryRun bool, progress Progress) (*SyncResult, error) {
	if progress == nil {
		progress = NoopProgress{}
	}

	repo, err := GetRepository(ctx, client, repoURL)
	if err != nil {
		return nil, err
	}

	cache, err := OpenOrGenerate(localBase)
	if err != nil {
		return nil, err
	}

	candidates := DiffRepo(cache, repo)
	for _, c := range candidates {
		progress.CandidateFound(c)
		cache.RemoveByName(c.ModName)
	}

	result := &SyncResult{Candidates: candidates, DryRun: dryRun}

	type modPlan struct {
		mod  RepoMod
		plan ModDiffResult
		dir  string
	}
	plans := make([]modPlan, 0, len(candidates))
	for _, c := range candidates {
		diff, err := DiffMod(ctx, client, repoURL, localBase, c, repo.RepoBasicAuthentication)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		plans = append(plans, modPlan{mod: c, plan: diff, dir: filepath.Join(localBase, c.ModName)})
		result.Downloads = append(result.Downloads, diff.Downloads...)
		for _, d := range diff.Deletions {
			result.Deletions = append(result.Deletions, c.ModName+"/"+d)
		}
	}

	if dryRun {
		return result, nil
	}

	for _, p := range plans {
		for _, rel := range p.plan.Deletions {
			progress.DeletionStarting(p.mod.ModName + "/" + rel)
			target := filepath.Join(p.dir, rel)
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				result.Errors = append(result.Errors, NewError(KindIO, "", fmt.Errorf("deleting %s: %w", target, err)))
			}
		}
		for _, cmd := range p.plan.Downloads {
			progress.DownloadStarting(cmd)
			err := executeDownload(ctx, client, repoURL, localBase, cmd, repo.RepoBasicAuthentication)
			progress.DownloadFinished(cmd, err)
			if err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
	}

	for _, p := range plans {
		mod, err := ScanMod(p.dir)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if err := writeModSRF(p.dir, mod); err != nil {
			result.Errors = append(result.Errors, NewError(KindIO, "", err))
			continue
		}
		cache.Insert(mod)
	}

	if err := Save(localBase, cache); err != nil {
		return result, err
	}

	return result, nil
}

// executeDownload streams cmd's remote body into a temp file in the same
// directory as its destination, then moves it into place only once fully
// received, so a failed or interrupted download never leaves a torn file at
// the target. Staging the temp file in the destination directory (rather
// than the OS scratch area) keeps the final os.Rename on the same
// filesystem; renaming across filesystems fails with EXDEV.
func executeDownload(ctx context.Context, client *http.Client, repoURL, localBase string, cmd DownloadCommand, auth *BasicAuth) error {
	start := time.Now()
	url := joinURL(repoURL, cmd.File)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewError(KindHTTP, url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if auth != nil {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		observeDownload(false, 0, time.Since(start))
		return NewError(KindHTTP, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		observeDownload(false, 0, time.Since(start))
		return NewError(KindHTTP, url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	target := filepath.Join(localBase, cmd.File)
	targetDir := filepath.Dir(target)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		observeDownload(false, 0, time.Since(start))
		return NewError(KindIO, "", err)
	}

	tmp, err := os.CreateTemp(targetDir, ".nimble-download-*.tmp")
	if err != nil {
		observeDownload(false, 0, time.Since(start))
		return NewError(KindIO, "", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		observeDownload(false, written, time.Since(start))
		return NewError(KindHTTP, url, fmt.Errorf("streaming body: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		observeDownload(false, written, time.Since(start))
		return NewError(KindIO, "", err)
	}
	if err := tmp.Close(); err != nil {
		observeDownload(false, written, time.Since(start))
		return NewError(KindIO, "", err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		observeDownload(false, written, time.Since(start))
		return NewError(KindIO, "", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		observeDownload(false, written, time.Since(start))
		return NewError(KindIO, "", err)
	}

	observeDownload(true, written, time.Since(start))
	return nil
}

// GenSRF forces a full cache rebuild under base, regardless of whether a
// valid cache already exists there, and persists the result.
func GenSRF(base string) error {
	cache, err := GenerateCache(base)
	if err != nil {
		return err
	}
	return Save(base, cache)
}
