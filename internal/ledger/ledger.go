// Package ledger implements the reward token's balance store.
//
// The token is a claim receipt rather than a tradable asset: balances grow
// only through payouts, and the only identity allowed to move funds is the
// authorized payer (the engine's distributor address).
package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"Baguette/internal/amount"
	"Baguette/internal/fault"
	"Baguette/internal/identity"
	"Baguette/internal/storage"
)

// Key prefixes for storage.
var (
	prefixBalance = []byte("b:")       // b:<address> -> amount
	supplyKey     = []byte("m:supply") // total issuance
)

// Ledger gates every outbound movement of funds on the authorized payer.
type Ledger struct {
	payer identity.Address
}

// New creates a ledger whose only authorized payer is payer.
func New(payer identity.Address) *Ledger {
	return &Ledger{payer: payer}
}

// Payer returns the authorized payer identity.
func (l *Ledger) Payer() identity.Address {
	return l.payer
}

// CreditPayout issues value new tokens to holder.
// Only the authorized payer may call it; total issuance grows by value.
func (l *Ledger) CreditPayout(rw storage.ReadWriter, caller, holder identity.Address, value *uint256.Int) error {
	if caller != l.payer {
		return &fault.UnauthorizedSenderError{Identity: caller}
	}

	supply, err := TotalSupply(rw)
	if err != nil {
		return err
	}

	if _, overflow := supply.AddOverflow(supply, value); overflow {
		return fmt.Errorf("total supply overflow")
	}

	if err := addBalance(rw, holder, value); err != nil {
		return err
	}

	return rw.Set(supplyKey, amount.Encode(supply))
}

// Transfer moves value from one holder to another.
//
// It fails with UnauthorizedSenderError unless from is the authorized payer,
// whatever the amount (zero included). An authorized transfer larger than the
// payer's balance fails with InsufficientBalanceError.
func (l *Ledger) Transfer(rw storage.ReadWriter, from, to identity.Address, value *uint256.Int) error {
	if from != l.payer {
		return &fault.UnauthorizedSenderError{Identity: from}
	}

	balance, err := BalanceOf(rw, from)
	if err != nil {
		return err
	}

	if balance.Lt(value) {
		return &fault.InsufficientBalanceError{Identity: from}
	}

	if err := setBalance(rw, from, balance.Sub(balance, value)); err != nil {
		return err
	}

	return addBalance(rw, to, value)
}

// BalanceOf returns the token balance of holder.
func BalanceOf(r storage.Reader, holder identity.Address) (*uint256.Int, error) {
	data, err := r.Get(makeBalanceKey(holder))
	if err != nil {
		return nil, fmt.Errorf("read balance of %s:\n%w", holder, err)
	}

	return amount.Decode(data)
}

// TotalSupply returns the total amount ever issued.
func TotalSupply(r storage.Reader) (*uint256.Int, error) {
	data, err := r.Get(supplyKey)
	if err != nil {
		return nil, fmt.Errorf("read total supply:\n%w", err)
	}

	return amount.Decode(data)
}

// addBalance credits value to holder.
func addBalance(rw storage.ReadWriter, holder identity.Address, value *uint256.Int) error {
	balance, err := BalanceOf(rw, holder)
	if err != nil {
		return err
	}

	if _, overflow := balance.AddOverflow(balance, value); overflow {
		return fmt.Errorf("balance overflow for %s", holder)
	}

	return setBalance(rw, holder, balance)
}

// setBalance writes a balance, dropping the key when it reaches zero.
func setBalance(rw storage.ReadWriter, holder identity.Address, balance *uint256.Int) error {
	key := makeBalanceKey(holder)

	if balance.IsZero() {
		return rw.Delete(key)
	}

	return rw.Set(key, amount.Encode(balance))
}

// makeBalanceKey creates a storage key for a holder balance.
func makeBalanceKey(holder identity.Address) []byte {
	key := make([]byte, len(prefixBalance)+identity.Size)
	copy(key, prefixBalance)
	copy(key[len(prefixBalance):], holder[:])

	return key
}
