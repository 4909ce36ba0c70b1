package reward

import (
	"fmt"

	"github.com/holiman/uint256"

	"Baguette/internal/amount"
	"Baguette/internal/fault"
	"Baguette/internal/storage"
)

// poolKey stores the remaining prize pool shared by every contest.
var poolKey = []byte("m:pool")

// Remaining returns the funds left in the prize pool.
func Remaining(r storage.Reader) (*uint256.Int, error) {
	data, err := r.Get(poolKey)
	if err != nil {
		return nil, fmt.Errorf("read prize pool:\n%w", err)
	}

	return amount.Decode(data)
}

// Debit takes value out of the prize pool.
// Fails with fault.ErrInsufficientPrizePool and leaves the pool untouched if
// the pool holds less than value.
func Debit(rw storage.ReadWriter, value *uint256.Int) error {
	remaining, err := Remaining(rw)
	if err != nil {
		return err
	}

	if remaining.Lt(value) {
		return fault.ErrInsufficientPrizePool
	}

	remaining.Sub(remaining, value)

	return rw.Set(poolKey, amount.Encode(remaining))
}

// Deposit adds value to the prize pool.
func Deposit(rw storage.ReadWriter, value *uint256.Int) error {
	remaining, err := Remaining(rw)
	if err != nil {
		return err
	}

	if _, overflow := remaining.AddOverflow(remaining, value); overflow {
		return fmt.Errorf("prize pool overflow")
	}

	return rw.Set(poolKey, amount.Encode(remaining))
}
