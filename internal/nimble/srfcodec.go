package nimble

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

const legacyMagic = "ADDON"

// utf8BOM is the three-byte UTF-8 encoding of U+FEFF.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM removes a leading UTF-8 byte-order mark, which some remote SRF
// producers still emit and which encoding/json refuses to parse through.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// IsLegacy reports whether data is the legacy line-oriented SRF format,
// detected by its five-byte "ADDON" magic.
func IsLegacy(data []byte) bool {
	return bytes.HasPrefix(data, []byte(legacyMagic))
}

// DecodeJSON parses the canonical (PascalCase) JSON SRF encoding, after
// stripping a leading BOM.
func DecodeJSON(data []byte) (Mod, error) {
	var mod Mod
	if err := json.Unmarshal(stripBOM(data), &mod); err != nil {
		return Mod{}, NewError(KindSRFDecode, "", err)
	}
	return mod, nil
}

// EncodeJSON renders a Mod as canonical (PascalCase) JSON, passed through
// an RFC 8785 JSON Canonicalization Scheme transform so the byte output is
// stable across runs regardless of any incidental field-iteration order.
func EncodeJSON(mod Mod) ([]byte, error) {
	raw, err := json.Marshal(mod)
	if err != nil {
		return nil, NewError(KindSRFDecode, "", err)
	}
	return canonicalizeJSON(raw)
}

// canonicalizeJSON passes arbitrary marshaled JSON through the RFC 8785
// transform. Used for both SRF manifests and the persisted mod cache, so
// both are byte-stable on disk independent of Go's map iteration order.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	canon, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, err
	}
	return canon, nil
}

// DecodeLegacy parses the legacy line-oriented SRF format. The grammar is
// stateful: the addon line's file count governs how many FILE|PBO records
// are consumed, and each file record's own part count governs how many
// part lines follow it. Surplus trailing lines are ignored.
func DecodeLegacy(data []byte) (Mod, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return Mod{}, NewError(KindLegacySRFDecode, "", fmt.Errorf("missing addon line"))
	}
	mod, fileCount, err := decodeLegacyAddonLine(scanner.Text())
	if err != nil {
		return Mod{}, NewError(KindLegacySRFDecode, "", err)
	}

	files := make([]File, 0, fileCount)
	for i := uint64(0); i < fileCount; i++ {
		if !scanner.Scan() {
			return Mod{}, NewError(KindLegacySRFDecode, "", fmt.Errorf("missing file record %d of %d", i+1, fileCount))
		}
		file, err := decodeLegacyFileLine(scanner.Text(), scanner)
		if err != nil {
			return Mod{}, NewError(KindLegacySRFDecode, "", err)
		}
		files = append(files, file)
	}

	mod.Files = files
	return mod, nil
}

func decodeLegacyAddonLine(line string) (Mod, uint64, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 4 {
		return Mod{}, 0, fmt.Errorf("malformed addon line %q", line)
	}
	if fields[0] != legacyMagic {
		return Mod{}, 0, fmt.Errorf("wrong magic %q", fields[0])
	}

	count, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Mod{}, 0, fmt.Errorf("parsing file count: %w", err)
	}

	checksum, err := ParseDigest(fields[3])
	if err != nil {
		return Mod{}, 0, fmt.Errorf("parsing addon checksum: %w", err)
	}

	return Mod{Name: fields[1], Checksum: checksum}, count, nil
}

func decodeLegacyFileLine(line string, scanner *bufio.Scanner) (File, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 5 {
		return File{}, fmt.Errorf("malformed file line %q", line)
	}

	typ, err := fileTypeFromLegacy(fields[0])
	if err != nil {
		return File{}, err
	}

	length, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("parsing file length: %w", err)
	}

	partCount, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("parsing part count: %w", err)
	}

	parts := make([]Part, 0, partCount)
	for i := uint64(0); i < partCount; i++ {
		if !scanner.Scan() {
			return File{}, fmt.Errorf("missing part record %d of %d", i+1, partCount)
		}
		part, err := decodeLegacyPartLine(scanner.Text())
		if err != nil {
			return File{}, err
		}
		parts = append(parts, part)
	}

	return File{
		Type:     typ,
		Path:     normalizePath(fields[1]),
		Length:   length,
		Checksum: fields[4],
		Parts:    parts,
	}, nil
}

func decodeLegacyPartLine(line string) (Part, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 4 {
		return Part{}, fmt.Errorf("malformed part line %q", line)
	}

	start, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Part{}, fmt.Errorf("parsing part start: %w", err)
	}

	length, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Part{}, fmt.Errorf("parsing part length: %w", err)
	}

	return Part{
		Path:     fields[0],
		Start:    start,
		Length:   length,
		Checksum: fields[3],
	}, nil
}

// Decode strips a leading BOM, detects the encoding, and dispatches to the
// appropriate codec. This is the entry point used for SRF bytes fetched
// from a remote repository or read from a local mod.srf.
func Decode(data []byte) (Mod, error) {
	clean := stripBOM(data)
	if IsLegacy(clean) {
		return DecodeLegacy(clean)
	}
	return DecodeJSON(clean)
}

// EncodeLegacy renders a Mod as the legacy line-oriented SRF format. Used
// by tests exercising the legacy round trip; the orchestrator only ever
// writes the canonical JSON encoding.
func EncodeLegacy(mod Mod) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s:%s:%d:%s\n", legacyMagic, mod.Name, len(mod.Files), mod.Checksum.String())
	for _, f := range mod.Files {
		tag := "FILE"
		if f.Type == FileTypePbo {
			tag = "PBO"
		}
		fmt.Fprintf(&b, "%s:%s:%d:%d:%s\n", tag, f.Path, f.Length, len(f.Parts), f.Checksum)
		for _, p := range f.Parts {
			fmt.Fprintf(&b, "%s:%d:%d:%s\n", p.Path, p.Start, p.Length, p.Checksum)
		}
	}
	return b.Bytes()
}
