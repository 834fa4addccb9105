package nimble

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrEmptyMissingFileYieldsEmptyCache(t *testing.T) {
	dir := t.TempDir()
	cache, err := LoadOrEmpty(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cache.Mods) != 0 {
		t.Fatalf("expected empty cache, got %d entries", len(cache.Mods))
	}
	if cache.Version != modCacheVersion {
		t.Fatalf("got version %d, want %d", cache.Version, modCacheVersion)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := newModCache()
	digest := MustDigest("44C1B8021822F80E1E560689D2AAB0BF")
	cache.Insert(Mod{Name: "@lambs_danger", Checksum: digest})

	if err := Save(dir, cache); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadOrEmpty(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	entry, ok := loaded.Mods[digest]
	if !ok || entry.Name != "@lambs_danger" {
		t.Fatalf("round trip lost entry: %+v", loaded.Mods)
	}
}

func TestSaveIsByteStableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	cache := newModCache()
	cache.Insert(Mod{Name: "@b", Checksum: MustDigest("BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")})
	cache.Insert(Mod{Name: "@a", Checksum: MustDigest("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")})

	if err := Save(dir, cache); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := os.ReadFile(cachePath(dir))
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := Save(dir, cache); err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := os.ReadFile(cachePath(dir))
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("cache output not byte-stable across saves:\n%s\nvs\n%s", first, second)
	}
}

func TestGenerateCacheBootsFromTwoModDirectories(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"@x", "@y"} {
		modDir := filepath.Join(dir, name)
		if err := os.MkdirAll(modDir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(modDir, "data.bin"), []byte(name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// a non-@-prefixed directory must be ignored
	if err := os.MkdirAll(filepath.Join(dir, "not_a_mod"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cache, err := GenerateCache(dir)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(cache.Mods) != 2 {
		t.Fatalf("got %d entries, want 2", len(cache.Mods))
	}
	for _, name := range []string{"@x", "@y"} {
		if _, err := os.Stat(filepath.Join(dir, name, srfFileName)); err != nil {
			t.Fatalf("expected mod.srf written for %s: %v", name, err)
		}
	}
}

func TestRemoveByNamePrunesEntryUnderItsOldChecksum(t *testing.T) {
	cache := newModCache()
	oldDigest := MustDigest("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	otherDigest := MustDigest("BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	cache.Insert(Mod{Name: "@updated", Checksum: oldDigest})
	cache.Insert(Mod{Name: "@other", Checksum: otherDigest})

	cache.RemoveByName("@updated")

	if cache.Contains(oldDigest) {
		t.Fatal("expected the stale checksum entry for @updated to be pruned")
	}
	if !cache.Contains(otherDigest) {
		t.Fatal("RemoveByName must not touch entries for other mods")
	}
}

func TestOpenOrGenerateReusesExistingCache(t *testing.T) {
	dir := t.TempDir()
	cache := newModCache()
	cache.Insert(Mod{Name: "@stub", Checksum: MustDigest("CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")})
	if err := Save(dir, cache); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := OpenOrGenerate(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(loaded.Mods) != 1 {
		t.Fatalf("expected the persisted cache to be reused, got %d entries", len(loaded.Mods))
	}
}

func TestOpenOrGenerateDoesNotRebuildAPresentButEmptyCache(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "@untouched")
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "data.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := Save(dir, newModCache()); err != nil {
		t.Fatalf("save empty cache: %v", err)
	}

	loaded, err := OpenOrGenerate(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(loaded.Mods) != 0 {
		t.Fatalf("expected the empty persisted cache to be returned as-is, got %d entries", len(loaded.Mods))
	}
	if _, err := os.Stat(filepath.Join(modDir, srfFileName)); !os.IsNotExist(err) {
		t.Fatal("a present-but-empty cache must not trigger a rebuild scan of mod directories")
	}
}
