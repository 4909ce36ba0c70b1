package client

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"Baguette/internal/commitment"
	"Baguette/internal/identity"
	"Baguette/internal/request"
)

// SolveResult is the node's answer to an accepted flag.
type SolveResult struct {
	Hash   [32]byte     // Hash is the transaction hash
	Rank   uint32       // Rank is the 0-based leaderboard position
	Reward *uint256.Int // Reward is the amount credited
	Event  uint64       // Event is the sequence of the FlagSolved event
}

// txResponse mirrors the node's POST /tx body.
type txResponse struct {
	Hash    string      `json:"hash"`
	Contest *uint64     `json:"contest"`
	Rank    *uint32     `json:"rank"`
	Reward  *amountJSON `json:"reward"`
	Event   *uint64     `json:"event"`
}

// SubmitFlag submits flag for slot of contest contestID.
func (w *Wallet) SubmitFlag(c *Client, contestID uint64, slot uint32, flag string) (*SolveResult, error) {
	args := request.EncodeSubmitFlagArgs(request.SubmitFlagArgs{
		ContestID: contestID,
		Slot:      slot,
		Flag:      flag,
	})

	txBytes, txHash := request.BuildSigned(w.privKey, request.FnSubmitFlag, args, w.nextNonce())

	var resp txResponse
	if err := c.submitTx(txBytes, &resp); err != nil {
		return nil, fmt.Errorf("submit submit_flag tx:\n%w", err)
	}

	if resp.Rank == nil || resp.Reward == nil {
		return nil, fmt.Errorf("incomplete submit_flag response")
	}

	hash, err := decodeHexID(resp.Hash)
	if err != nil {
		return nil, err
	}
	if hash != txHash {
		return nil, fmt.Errorf("node answered for tx %x, sent %x", hash[:8], txHash[:8])
	}

	reward, err := resp.Reward.value()
	if err != nil {
		return nil, err
	}

	res := &SolveResult{Hash: txHash, Rank: *resp.Rank, Reward: reward}
	if resp.Event != nil {
		res.Event = *resp.Event
	}

	return res, nil
}

// StartContest creates a contest with the given commitments.
// Only the operator wallet is accepted. Returns the new contest id.
func (w *Wallet) StartContest(c *Client, commitments []commitment.Hash) (uint64, error) {
	args := request.EncodeStartContestArgs(commitments)
	txBytes, _ := request.BuildSigned(w.privKey, request.FnStartContest, args, w.nextNonce())

	var resp txResponse
	if err := c.submitTx(txBytes, &resp); err != nil {
		return 0, fmt.Errorf("submit start_contest tx:\n%w", err)
	}

	if resp.Contest == nil {
		return 0, fmt.Errorf("missing contest id in response")
	}

	return *resp.Contest, nil
}

// DepositPool adds value to the prize pool. Only the operator wallet is accepted.
func (w *Wallet) DepositPool(c *Client, value *uint256.Int) error {
	args := request.EncodeDepositPoolArgs(value)
	txBytes, _ := request.BuildSigned(w.privKey, request.FnDepositPool, args, w.nextNonce())

	var resp txResponse
	if err := c.submitTx(txBytes, &resp); err != nil {
		return fmt.Errorf("submit deposit_pool tx:\n%w", err)
	}

	return nil
}

// Transfer sends value reward tokens to recipient.
// The node rejects every sender except the distributor.
func (w *Wallet) Transfer(c *Client, recipient identity.Address, value *uint256.Int) error {
	args := request.EncodeTransferArgs(request.TransferArgs{To: recipient, Amount: value})
	txBytes, _ := request.BuildSigned(w.privKey, request.FnTransfer, args, w.nextNonce())

	var resp txResponse
	if err := c.submitTx(txBytes, &resp); err != nil {
		return fmt.Errorf("submit transfer tx:\n%w", err)
	}

	return nil
}

// decodeHexID decodes a 64-char hex string to a [32]byte.
func decodeHexID(hexStr string) ([32]byte, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 32 {
		return [32]byte{}, fmt.Errorf("invalid hex ID: %q", hexStr)
	}

	var id [32]byte
	copy(id[:], b)

	return id, nil
}
