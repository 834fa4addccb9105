package nimble

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PboEntryType tags a directory record within a PBO's header. Unknown tags
// are a hard error: they are evidence of corruption or format drift, not a
// variant to skip over.
type PboEntryType uint32

const (
	PboEntryVers PboEntryType = 0x56657273
	PboEntryCprs PboEntryType = 0x43707273
	PboEntryEnco PboEntryType = 0x456e6372
	PboEntryNone PboEntryType = 0x00000000
)

func (t PboEntryType) known() bool {
	switch t {
	case PboEntryVers, PboEntryCprs, PboEntryEnco, PboEntryNone:
		return true
	default:
		return false
	}
}

// PboEntry is one directory record: a NUL-terminated filename followed by
// a 20-byte little-endian record.
type PboEntry struct {
	Filename     string
	Type         PboEntryType
	OriginalSize uint32
	Offset       uint32
	Timestamp    uint32
	DataSize     uint32
}

// pboSource is the minimal capability set the PBO reader needs: forward
// byte-at-a-time reads (for NUL-terminated strings), fixed-size reads (for
// the 20-byte records), and stream position (to report header length).
// Abstracting this instead of taking a concrete *os.File lets the scanner
// drive the same reader it will later re-seek for hashing.
type pboSource interface {
	io.Reader
	io.ByteReader
	io.Seeker
}

// Pbo is the result of parsing a PBO's header directory: where the
// directory ends in the byte stream, the Vers entry's extension key/value
// block, and the ordered entry list (including the Vers record itself).
type Pbo struct {
	HeaderLen  uint64
	Extensions map[string]string
	Entries    []PboEntry
}

func readCString(r io.ByteReader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func readExtensions(r pboSource) (map[string]string, error) {
	out := make(map[string]string)
	for {
		key, err := readCString(r)
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		value, err := readCString(r)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func readPboEntry(r pboSource) (PboEntry, error) {
	filename, err := readCString(r)
	if err != nil {
		return PboEntry{}, fmt.Errorf("reading entry filename: %w", err)
	}

	var raw [20]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return PboEntry{}, fmt.Errorf("reading entry record: %w", err)
	}

	typ := PboEntryType(binary.LittleEndian.Uint32(raw[0:4]))
	if !typ.known() {
		return PboEntry{}, fmt.Errorf("unknown pbo entry type: 0x%08x", uint32(typ))
	}

	return PboEntry{
		Filename:     filename,
		Type:         typ,
		OriginalSize: binary.LittleEndian.Uint32(raw[4:8]),
		Offset:       binary.LittleEndian.Uint32(raw[8:12]),
		Timestamp:    binary.LittleEndian.Uint32(raw[12:16]),
		DataSize:     binary.LittleEndian.Uint32(raw[16:20]),
	}, nil
}

// ReadPbo parses a PBO's header directory from src, which must be
// positioned at the start of the container. It reads strictly forward and
// leaves the cursor at the end of the header on success.
func ReadPbo(src pboSource) (*Pbo, error) {
	var entries []PboEntry
	extensions := make(map[string]string)

	for {
		entry, err := readPboEntry(src)
		if err != nil {
			return nil, err
		}

		if entry.Type == PboEntryNone && entry.Filename == "" {
			break
		}

		if entry.Type == PboEntryVers {
			ext, err := readExtensions(src)
			if err != nil {
				return nil, fmt.Errorf("reading vers extensions: %w", err)
			}
			extensions = ext
		}

		entries = append(entries, entry)
	}

	headerLen, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("reading header position: %w", err)
	}

	return &Pbo{
		HeaderLen:  uint64(headerLen),
		Extensions: extensions,
		Entries:    entries,
	}, nil
}
