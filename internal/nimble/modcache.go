package nimble

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// modCacheFileName is the persisted cache file, rooted directly under the
// mods base directory.
const modCacheFileName = "nimble-cache.json"

// modCacheVersion is the only cache schema version this build understands.
// A mismatched version on disk is read as an empty cache rather than
// upgraded; it does not trigger GenerateCache's full rebuild.
const modCacheVersion = 1

// CacheEntry is the cached metadata for one previously-scanned mod,
// keyed by its aggregate Digest in ModCache.Mods.
type CacheEntry struct {
	Name string `json:"Name"`
}

// ModCache is the persistent map of mod checksum to mod name, letting a
// sync skip re-scanning any mod whose remote checksum it has already seen.
type ModCache struct {
	Version int                   `json:"Version"`
	Mods    map[Digest]CacheEntry `json:"Mods"`
}

func newModCache() ModCache {
	return ModCache{Version: modCacheVersion, Mods: make(map[Digest]CacheEntry)}
}

// Contains reports whether digest is already present in the cache.
func (c ModCache) Contains(digest Digest) bool {
	_, ok := c.Mods[digest]
	return ok
}

// Insert records mod's checksum and name in the cache.
func (c ModCache) Insert(mod Mod) {
	c.Mods[mod.Checksum] = CacheEntry{Name: mod.Name}
}

// RemoveByName drops every entry whose Name matches name, regardless of
// its checksum key. A mod candidate is keyed by its new (not-yet-cached)
// checksum, so looking the old entry up by checksum can never find it;
// removing by name is what actually prunes the stale entry left behind by
// a mod update before its fresh checksum is inserted.
func (c ModCache) RemoveByName(name string) {
	for digest, entry := range c.Mods {
		if entry.Name == name {
			delete(c.Mods, digest)
		}
	}
}

func cachePath(base string) string {
	return filepath.Join(base, modCacheFileName)
}

// LoadOrEmpty reads the persisted cache at base. A missing file or a
// version mismatch yields a fresh empty cache rather than an error: both
// are ordinary states the caller recovers from by rebuilding.
func LoadOrEmpty(base string) (ModCache, error) {
	cache, _, err := loadCache(base)
	return cache, err
}

// loadCache reads the persisted cache at base and reports whether a cache
// file was actually found there. found is false only when the file is
// absent; a present-but-empty or version-mismatched file still reports
// found == true, since both are existing cache states, not missing ones.
func loadCache(base string) (cache ModCache, found bool, err error) {
	raw, readErr := os.ReadFile(cachePath(base))
	if os.IsNotExist(readErr) {
		return newModCache(), false, nil
	}
	if readErr != nil {
		return ModCache{}, false, NewError(KindCacheOpen, "", readErr)
	}

	if err := json.Unmarshal(raw, &cache); err != nil {
		return ModCache{}, false, NewError(KindCacheOpen, "", err)
	}
	if cache.Version != modCacheVersion {
		return newModCache(), true, nil
	}
	if cache.Mods == nil {
		cache.Mods = make(map[Digest]CacheEntry)
	}
	return cache, true, nil
}

// Save persists cache to base atomically: it is written to a temp file in
// the same directory, fsynced, and renamed over the target, so a crash
// mid-write never leaves a truncated cache on disk.
func Save(base string, cache ModCache) error {
	raw, err := canonicalizeCache(cache)
	if err != nil {
		return NewError(KindCacheSave, "", err)
	}

	target := cachePath(base)
	tmp, err := os.CreateTemp(base, ".nimble-cache-*.tmp")
	if err != nil {
		return NewError(KindCacheSave, "", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return NewError(KindCacheSave, "", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return NewError(KindCacheSave, "", err)
	}
	if err := tmp.Close(); err != nil {
		return NewError(KindCacheSave, "", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return NewError(KindCacheSave, "", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return NewError(KindCacheSave, "", err)
	}
	return nil
}

func canonicalizeCache(cache ModCache) ([]byte, error) {
	raw, err := json.Marshal(cache)
	if err != nil {
		return nil, err
	}
	return canonicalizeJSON(raw)
}

// OpenOrGenerate loads the persisted cache if one exists at base; otherwise
// it rebuilds the cache from scratch by scanning every "@"-prefixed mod
// directory directly under base in parallel, writing each mod's mod.srf
// as it goes. A cache file that exists but is empty (or version-mismatched)
// is returned as-is rather than triggering a rebuild: only a missing file
// does that.
func OpenOrGenerate(base string) (ModCache, error) {
	cache, found, err := loadCache(base)
	if err != nil {
		return ModCache{}, err
	}
	if found {
		return cache, nil
	}
	return GenerateCache(base)
}

// GenerateCache unconditionally rebuilds the cache by scanning every
// "@"-prefixed mod directory directly under base, in parallel, bounded to
// one worker per CPU, matching the scan fan-out used elsewhere in this package.
func GenerateCache(base string) (ModCache, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return ModCache{}, NewError(KindCacheOpen, "", err)
	}

	var modDirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !strings.HasPrefix(e.Name(), "@") {
			continue
		}
		modDirs = append(modDirs, filepath.Join(base, e.Name()))
	}

	mods := make([]Mod, len(modDirs))
	group := new(errgroup.Group)
	group.SetLimit(max(1, runtime.NumCPU()))

	for i, dir := range modDirs {
		i, dir := i, dir
		group.Go(func() error {
			start := time.Now()
			mod, err := ScanMod(dir)
			observeScan(time.Since(start))
			if err != nil {
				return fmt.Errorf("scanning %s: %w", dir, err)
			}
			if err := writeModSRF(dir, mod); err != nil {
				return err
			}
			mods[i] = mod
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return ModCache{}, NewError(KindCacheOpen, "", err)
	}

	cache := newModCache()
	for _, mod := range mods {
		cache.Insert(mod)
	}
	return cache, nil
}

func writeModSRF(dir string, mod Mod) error {
	raw, err := EncodeJSON(mod)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, srfFileName), raw, 0o644); err != nil {
		return fmt.Errorf("writing srf for %s: %w", dir, err)
	}
	return nil
}
