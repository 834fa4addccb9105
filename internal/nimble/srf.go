package nimble

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Sentinel part paths delimiting the non-entry regions of a PBO.
const (
	PartHeaderSentinel = "$$HEADER$$"
	PartEndSentinel    = "$$END$$"
)

// plainFileChunkSize is the fixed chunk size used when hashing a
// non-PBO file part-by-part.
const plainFileChunkSize = 5_000_000

// Part is a contiguous byte range within a file, along with its MD5
// checksum. Path is the PBO entry name for PBO sub-parts, or
// "<basename>_<end-offset>" for plain-file chunks.
type Part struct {
	Path     string `json:"Path"`
	Length   uint64 `json:"Length"`
	Start    uint64 `json:"Start"`
	Checksum string `json:"Checksum"`
}

// FileType distinguishes a plain file from a PBO container. It serializes
// on the wire as "SwiftyFile" / "SwiftyPboFile" to match the upstream
// on-disk SRF vocabulary.
type FileType int

const (
	FileTypePlain FileType = iota
	FileTypePbo
)

func (t FileType) MarshalJSON() ([]byte, error) {
	switch t {
	case FileTypePlain:
		return []byte(`"SwiftyFile"`), nil
	case FileTypePbo:
		return []byte(`"SwiftyPboFile"`), nil
	default:
		return nil, fmt.Errorf("unknown file type %d", t)
	}
}

func (t *FileType) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "SwiftyFile":
		*t = FileTypePlain
	case "SwiftyPboFile":
		*t = FileTypePbo
	default:
		return fmt.Errorf("unknown file type %s", data)
	}
	return nil
}

// fileTypeFromLegacy maps the legacy SRF record tag to a FileType.
func fileTypeFromLegacy(tag string) (FileType, error) {
	switch tag {
	case "FILE":
		return FileTypePlain, nil
	case "PBO":
		return FileTypePbo, nil
	default:
		return 0, fmt.Errorf("unknown legacy file type %q", tag)
	}
}

// File describes one scanned file within a mod: its normalized relative
// path, aggregate length/checksum, type, and constituent parts.
type File struct {
	Path     string   `json:"Path"`
	Length   uint64   `json:"Length"`
	Checksum string   `json:"Checksum"`
	Type     FileType `json:"Type"`
	Parts    []Part   `json:"Parts"`
}

// UnmarshalJSON normalizes Path to forward slashes on the way in, since
// upstream SRF producers don't always normalize Windows-style paths.
func (f *File) UnmarshalJSON(data []byte) error {
	type alias File
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Path = normalizePath(a.Path)
	*f = File(a)
	return nil
}

// normalizePath converts backslashes to forward slashes, matching the
// upstream tool's tolerance for un-normalized Windows paths.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// Mod is the root SRF manifest for a single mod directory: its lowercase
// name, aggregate checksum, and sorted file list.
type Mod struct {
	Name     string `json:"Name"`
	Checksum Digest `json:"Checksum"`
	Files    []File `json:"Files"`
}

// GenerateInvalidMod builds the placeholder local SRF used when a remote
// mod's directory does not yet exist locally: zero checksum, no files, so
// every remote file registers as missing in the differ.
func GenerateInvalidMod(remote Mod) Mod {
	return Mod{
		Name:     remote.Name,
		Checksum: ZeroDigest,
		Files:    nil,
	}
}

// sortFiles orders files by uppercased path ascending, the canonical order
// SRF aggregation and serialization both rely on.
func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool {
		return strings.ToUpper(files[i].Path) < strings.ToUpper(files[j].Path)
	})
}

// aggregateFileChecksum computes a file's checksum as the MD5 of the
// concatenation of each part's uppercase-hex checksum, in order.
func aggregateFileChecksum(parts []Part) string {
	h := md5.New()
	for _, p := range parts {
		h.Write([]byte(strings.ToUpper(p.Checksum)))
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// aggregateModChecksum computes the mod checksum: MD5 over, for each file
// in sorted order, the file's uppercase-hex checksum followed by its
// lowercased, slash-normalized path.
func aggregateModChecksum(files []File) Digest {
	h := md5.New()
	for _, f := range files {
		h.Write([]byte(strings.ToUpper(f.Checksum)))
		h.Write([]byte(strings.ToLower(normalizePath(f.Path))))
	}
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return DigestFromBytes(sum)
}

// baseName returns the final path component, mirroring path.Base but
// tolerant of an already-normalized relative path.
func baseName(p string) string {
	return path.Base(normalizePath(p))
}
