package nimble

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest is a 16-byte MD5 fingerprint, always rendered on the wire and on
// disk as a 32-character uppercase hex string.
type Digest [16]byte

// ZeroDigest is the sentinel value used for a mod that has never been
// scanned (see GenerateInvalidMod).
var ZeroDigest = Digest{}

// ParseDigest decodes a 32-character hex string (either case) into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	clean := strings.TrimSpace(s)
	if len(clean) != hex.EncodedLen(len(d)) {
		return Digest{}, NewError(KindDigestParse, "", fmt.Errorf("digest %q did not decode to 16 bytes", s))
	}
	n, err := hex.Decode(d[:], []byte(clean))
	if err != nil || n != len(d) {
		return Digest{}, NewError(KindDigestParse, "", fmt.Errorf("digest %q did not decode to 16 bytes", s))
	}
	return d, nil
}

// MustDigest is ParseDigest that panics on error, useful in tests and for
// literal fixture checksums.
func MustDigest(s string) Digest {
	d, err := ParseDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DigestFromBytes wraps a raw 16-byte MD5 sum.
func DigestFromBytes(b [16]byte) Digest {
	return Digest(b)
}

// String renders the digest as 32 uppercase hex characters.
func (d Digest) String() string {
	return strings.ToUpper(hex.EncodeToString(d[:]))
}

// Bytes returns the raw 16-byte value.
func (d Digest) Bytes() [16]byte {
	return d
}

// IsZero reports whether the digest is the all-zero sentinel.
func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

// Compare orders digests lexicographically on their hex form.
func (d Digest) Compare(other Digest) int {
	return strings.Compare(d.String(), other.String())
}

// MarshalText implements encoding.TextMarshaler, letting Digest serve
// directly as a JSON object key (e.g. ModCache.Mods) or string value.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
