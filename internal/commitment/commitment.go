// Package commitment computes and checks flag hash commitments.
//
// A commitment is the Keccak-256 digest of the UTF-8 flag string, the same
// value the contract tooling produces with keccak256(toUtf8Bytes(flag)), so
// deployment hash lists can be reused verbatim.
package commitment

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the width of a commitment in bytes.
const Size = 32

// Hash is an immutable commitment to one expected flag value.
type Hash [Size]byte

// Of returns the commitment for flag.
func Of(flag string) Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte(flag))

	var h Hash
	d.Sum(h[:0])

	return h
}

// Matches reports whether candidate hashes to h.
func (h Hash) Matches(candidate string) bool {
	got := Of(candidate)
	return subtle.ConstantTimeCompare(got[:], h[:]) == 1
}

// String returns the 0x-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}

	*h = parsed

	return nil
}

// ParseHex decodes a 0x-prefixed 32-byte hex value.
func ParseHex(s string) (Hash, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return Hash{}, fmt.Errorf("invalid flag hash %q: missing 0x prefix", s)
	}

	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return Hash{}, fmt.Errorf("invalid flag hash %q:\n%w", s, err)
	}

	if len(raw) != Size {
		return Hash{}, fmt.Errorf("invalid flag hash %q: got %d bytes, want %d", s, len(raw), Size)
	}

	var h Hash
	copy(h[:], raw)

	return h, nil
}

// ParseList decodes a comma-separated list of hex commitments.
// Blank entries are skipped; the result keeps input order.
func ParseList(csv string) ([]Hash, error) {
	var hashes []Hash

	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		h, err := ParseHex(part)
		if err != nil {
			return nil, err
		}

		hashes = append(hashes, h)
	}

	return hashes, nil
}

// Concat packs hashes back to back. Used for storage and wire encoding.
func Concat(hashes []Hash) []byte {
	out := make([]byte, 0, len(hashes)*Size)
	for _, h := range hashes {
		out = append(out, h[:]...)
	}

	return out
}

// Split is the inverse of Concat.
func Split(data []byte) ([]Hash, error) {
	if len(data)%Size != 0 {
		return nil, fmt.Errorf("commitment data length %d is not a multiple of %d", len(data), Size)
	}

	hashes := make([]Hash, len(data)/Size)
	for i := range hashes {
		copy(hashes[i][:], data[i*Size:(i+1)*Size])
	}

	return hashes, nil
}
