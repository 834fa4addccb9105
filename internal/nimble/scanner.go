package nimble

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// srfFileName is excluded from every scan, at any depth: it is the
// scanner's own output, not mod content.
const srfFileName = "mod.srf"

// ScanMod walks dir recursively, hashing every regular file (PBO-aware)
// and assembling the resulting SRF Mod. File hashing fans out across a
// bounded worker pool; the final path sort makes the aggregated checksum
// independent of goroutine completion order.
func ScanMod(dir string) (Mod, error) {
	paths, err := collectScanPaths(dir)
	if err != nil {
		return Mod{}, NewError(KindIO, "", err)
	}

	files := make([]File, len(paths))
	group := new(errgroup.Group)
	group.SetLimit(max(1, runtime.NumCPU()))

	for i, p := range paths {
		i, p := i, p
		group.Go(func() error {
			f, err := scanOne(p, dir)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Mod{}, err
	}

	sortFiles(files)

	return Mod{
		Name:     strings.ToLower(baseName(dir)),
		Checksum: aggregateModChecksum(files),
		Files:    files,
	}, nil
}

// collectScanPaths walks dir and returns every regular file's absolute
// path, excluding any file named exactly mod.srf.
func collectScanPaths(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == srfFileName {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	return paths, err
}

func scanOne(path, base string) (File, error) {
	if filepath.Ext(path) == ".pbo" {
		return scanPbo(path, base)
	}
	return scanFile(path, base)
}

func relPath(path, base string) (string, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", err
	}
	return normalizePath(rel), nil
}

// scanFile reads a plain file in fixed plainFileChunkSize chunks, hashing
// each into its own Part, then aggregating the file checksum.
func scanFile(path, base string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, NewError(KindIO, "", fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	rel, err := relPath(path, base)
	if err != nil {
		return File{}, NewError(KindIO, "", err)
	}

	name := baseName(path)
	var parts []Part
	var pos uint64

	buf := make([]byte, plainFileChunkSize)
	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			h := md5.Sum(buf[:n])
			start := pos
			pos += uint64(n)
			parts = append(parts, Part{
				Path:     fmt.Sprintf("%s_%d", name, pos),
				Start:    start,
				Length:   uint64(n),
				Checksum: strings.ToUpper(hex.EncodeToString(h[:])),
			})
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return File{}, NewError(KindIO, "", fmt.Errorf("reading %s: %w", path, readErr))
		}
	}

	return File{
		Path:     rel,
		Length:   pos,
		Checksum: aggregateFileChecksum(parts),
		Type:     FileTypePlain,
		Parts:    parts,
	}, nil
}

// pboFile adds the byte-at-a-time read ReadPbo needs to an *os.File. It is
// unbuffered, so the file offset always matches what ReadPbo has consumed.
type pboFile struct {
	*os.File
}

func (p pboFile) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(p.File, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// scanPbo parses the PBO header, then hashes the header span, each entry
// (excluding the elided Vers record), and the trailing span, in that
// order, reproducing the upstream tool's part layout bit-exactly.
func scanPbo(path, base string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, NewError(KindIO, "", fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	pbo, err := ReadPbo(pboFile{f})
	if err != nil {
		return File{}, NewError(KindScanPBO, "", fmt.Errorf("parsing %s: %w", path, err))
	}

	length, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return File{}, NewError(KindIO, "", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return File{}, NewError(KindIO, "", err)
	}

	var parts []Part

	headerHash, err := hashSpan(f, pbo.HeaderLen)
	if err != nil {
		return File{}, NewError(KindScanPBO, "", fmt.Errorf("hashing header of %s: %w", path, err))
	}
	parts = append(parts, Part{
		Path:     PartHeaderSentinel,
		Start:    0,
		Length:   pbo.HeaderLen,
		Checksum: headerHash,
	})

	offset := pbo.HeaderLen
	for i, entry := range pbo.Entries {
		// The Vers entry (always first) is elided from the per-entry hash
		// sequence: its bytes are already covered by the header span.
		if i == 0 {
			continue
		}
		hash, err := hashSpan(f, uint64(entry.DataSize))
		if err != nil {
			return File{}, NewError(KindScanPBO, "", fmt.Errorf("hashing entry %q of %s: %w", entry.Filename, path, err))
		}
		parts = append(parts, Part{
			Path:     entry.Filename,
			Start:    offset,
			Length:   uint64(entry.DataSize),
			Checksum: hash,
		})
		offset += uint64(entry.DataSize)
	}

	remaining := uint64(length) - offset
	endHash, err := hashSpan(f, remaining)
	if err != nil {
		return File{}, NewError(KindScanPBO, "", fmt.Errorf("hashing trailer of %s: %w", path, err))
	}
	parts = append(parts, Part{
		Path:     PartEndSentinel,
		Start:    offset,
		Length:   remaining,
		Checksum: endHash,
	})

	rel, err := relPath(path, base)
	if err != nil {
		return File{}, NewError(KindIO, "", err)
	}

	return File{
		Path:     rel,
		Length:   uint64(length),
		Checksum: aggregateFileChecksum(parts),
		Type:     FileTypePbo,
		Parts:    parts,
	}, nil
}

// hashSpan consumes exactly n bytes from the current position of r and
// returns the uppercase-hex MD5 of them.
func hashSpan(r io.Reader, n uint64) (string, error) {
	h := md5.New()
	if _, err := io.CopyN(h, r, int64(n)); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

