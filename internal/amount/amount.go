// Package amount handles reward token quantities.
//
// Amounts are unsigned 256-bit integers in the token's smallest unit
// (18 decimals), stored as 32-byte big-endian values.
package amount

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// Decimals is the number of fractional digits of one whole token.
	Decimals = 18

	// Size is the encoded width of an amount.
	Size = 32
)

// Zero returns a new zero amount.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Parse converts a decimal token string ("0.05", "12", "1.5") into smallest units.
func Parse(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}

	if len(frac) > Decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, Decimals)
	}

	frac += strings.Repeat("0", Decimals-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return Zero(), nil
	}

	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q:\n%w", s, err)
	}

	return v, nil
}

// Format renders v as a decimal token string without trailing zeros.
func Format(v *uint256.Int) string {
	whole, frac := new(uint256.Int), new(uint256.Int)
	whole.DivMod(v, unit(), frac)

	if frac.IsZero() {
		return whole.Dec()
	}

	digits := frac.Dec()
	digits = strings.Repeat("0", Decimals-len(digits)) + digits

	return whole.Dec() + "." + strings.TrimRight(digits, "0")
}

// Float returns v in whole tokens, for metrics only.
func Float(v *uint256.Int) float64 {
	f, _ := strconv.ParseFloat(Format(v), 64)
	return f
}

// Encode returns the 32-byte big-endian form of v.
func Encode(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

// Decode reads a stored amount. A missing value decodes to zero.
func Decode(data []byte) (*uint256.Int, error) {
	if len(data) == 0 {
		return Zero(), nil
	}

	if len(data) != Size {
		return nil, fmt.Errorf("invalid amount length: %d", len(data))
	}

	return new(uint256.Int).SetBytes(data), nil
}

// unit returns 10^18.
func unit() *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))
}
