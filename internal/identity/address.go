package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// Size is the width of an address in bytes.
const Size = 32

// Address is an opaque participant identity: the raw Ed25519 public key of the
// signer, or a derived address for protocol-owned accounts.
type Address [Size]byte

// FromPublicKey returns the address of an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (Address, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Address{}, fmt.Errorf("invalid public key size: %d", len(pub))
	}

	var a Address
	copy(a[:], pub)

	return a, nil
}

// FromBytes copies a 32-byte slice into an Address.
func FromBytes(b []byte) (Address, error) {
	if len(b) != Size {
		return Address{}, fmt.Errorf("invalid address length: %d", len(b))
	}

	var a Address
	copy(a[:], b)

	return a, nil
}

// Derive computes a protocol-owned address from an owner and a label.
// No private key exists for a derived address, so it can only act through
// the component that owns it. derived = blake3(label || owner).
func Derive(owner Address, label string) Address {
	h := blake3.New()
	h.Write([]byte(label))
	h.Write(owner[:])

	var a Address
	h.Sum(a[:0])

	return a
}

// Parse decodes the base58 text form of an address.
func Parse(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address %q:\n%w", s, err)
	}

	return FromBytes(raw)
}

// String returns the base58 text form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
