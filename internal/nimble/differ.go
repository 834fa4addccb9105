package nimble

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// DownloadCommand requests the whole-file replacement of one mod file.
// Begin/End are reserved for a future intra-file range diff and are
// always 0/Length today — never consulted by the orchestrator.
type DownloadCommand struct {
	File  string
	Begin uint64
	End   uint64
}

// DiffRepo returns the subset of repo.RequiredMods whose checksum is not
// already a key in cache. The repository's own top-level Checksum is
// never consulted: it embeds a remote generation timestamp and is
// unreliable for equality. Optional mods are ignored by the core.
func DiffRepo(cache ModCache, repo Repository) []RepoMod {
	var candidates []RepoMod
	for _, mod := range repo.RequiredMods {
		if !cache.Contains(mod.Checksum) {
			candidates = append(candidates, mod)
		}
	}
	return candidates
}

// ModDiffResult is the outcome of a mod-level diff: the download commands
// needed to bring the local mod up to date with the remote, and the
// relative paths of local files no longer present remotely.
type ModDiffResult struct {
	Downloads []DownloadCommand
	Deletions []string
}

// localSRF resolves the local manifest for modDir: decoding an existing
// mod.srf, rescanning if the directory exists but has none, or producing
// an invalid placeholder if the directory is altogether absent.
func localSRF(modDir string, remote Mod) (Mod, error) {
	info, statErr := os.Stat(modDir)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return GenerateInvalidMod(remote), nil
		}
		return Mod{}, NewError(KindIO, "", statErr)
	}
	if !info.IsDir() {
		return Mod{}, NewError(KindIO, "", fmt.Errorf("%s is not a directory", modDir))
	}

	srfPath := filepath.Join(modDir, srfFileName)
	raw, err := os.ReadFile(srfPath)
	if os.IsNotExist(err) {
		return ScanMod(modDir)
	}
	if err != nil {
		return Mod{}, NewError(KindIO, "", err)
	}

	mod, err := Decode(raw)
	if err != nil {
		return Mod{}, err
	}
	return mod, nil
}

// DiffMod fetches the remote SRF for remoteMod, resolves the local SRF
// under localBase/remoteMod.ModName, and — unless the two mod checksums
// already match — produces the whole-file download and stale-file
// deletion plan implied by comparing their file lists by path.
func DiffMod(ctx context.Context, client *http.Client, repoURL, localBase string, remoteMod RepoMod, auth *BasicAuth) (ModDiffResult, error) {
	raw, err := GetRemoteSRF(ctx, client, repoURL, remoteMod.ModName, auth)
	if err != nil {
		return ModDiffResult{}, err
	}
	remote, err := Decode(raw)
	if err != nil {
		return ModDiffResult{}, err
	}

	modDir := filepath.Join(localBase, remoteMod.ModName)
	local, err := localSRF(modDir, remote)
	if err != nil {
		return ModDiffResult{}, err
	}

	if local.Checksum == remote.Checksum {
		return ModDiffResult{}, nil
	}

	remoteByPath := make(map[string]File, len(remote.Files))
	for _, f := range remote.Files {
		remoteByPath[f.Path] = f
	}
	localByPath := make(map[string]File, len(local.Files))
	for _, f := range local.Files {
		localByPath[f.Path] = f
	}

	var result ModDiffResult
	for _, rf := range remote.Files {
		lf, ok := localByPath[rf.Path]
		if !ok || lf.Checksum != rf.Checksum {
			result.Downloads = append(result.Downloads, DownloadCommand{
				File:  remoteMod.ModName + "/" + rf.Path,
				Begin: 0,
				End:   rf.Length,
			})
		}
	}
	for _, lf := range local.Files {
		if _, ok := remoteByPath[lf.Path]; !ok {
			result.Deletions = append(result.Deletions, lf.Path)
		}
	}

	return result, nil
}
