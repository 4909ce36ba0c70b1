package request

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"Baguette/internal/amount"
	"Baguette/internal/commitment"
	"Baguette/internal/identity"
)

// maxFlagLen bounds the flag string carried by submit_flag.
const maxFlagLen = 1024

// SubmitFlagArgs are the arguments of submit_flag.
type SubmitFlagArgs struct {
	ContestID uint64
	Slot      uint32
	Flag      string
}

// TransferArgs are the arguments of transfer.
type TransferArgs struct {
	To     identity.Address
	Amount *uint256.Int
}

// EncodeSubmitFlagArgs encodes submit_flag arguments in Borsh format.
// Format: u64 contest_id (LE) + u32 slot (LE) + u32 len + flag bytes
func EncodeSubmitFlagArgs(a SubmitFlagArgs) []byte {
	buf := make([]byte, 0, 8+4+4+len(a.Flag))

	buf = binary.LittleEndian.AppendUint64(buf, a.ContestID)
	buf = binary.LittleEndian.AppendUint32(buf, a.Slot)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Flag)))
	buf = append(buf, a.Flag...)

	return buf
}

// DecodeSubmitFlagArgs decodes submit_flag arguments from Borsh format.
func DecodeSubmitFlagArgs(data []byte) (SubmitFlagArgs, error) {
	if len(data) < 16 {
		return SubmitFlagArgs{}, fmt.Errorf("submit_flag args too short: %d bytes", len(data))
	}

	a := SubmitFlagArgs{
		ContestID: binary.LittleEndian.Uint64(data[0:8]),
		Slot:      binary.LittleEndian.Uint32(data[8:12]),
	}

	flagLen := binary.LittleEndian.Uint32(data[12:16])
	if flagLen > maxFlagLen {
		return SubmitFlagArgs{}, fmt.Errorf("flag too long: %d bytes", flagLen)
	}

	if uint32(len(data)-16) != flagLen {
		return SubmitFlagArgs{}, fmt.Errorf("flag length mismatch: declared %d, have %d", flagLen, len(data)-16)
	}

	a.Flag = string(data[16:])

	return a, nil
}

// EncodeStartContestArgs encodes start_contest arguments in Borsh format.
// Format: u32 count (LE) + count * [u8; 32] commitment
func EncodeStartContestArgs(commitments []commitment.Hash) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(commitments)))
	return append(buf, commitment.Concat(commitments)...)
}

// DecodeStartContestArgs decodes start_contest arguments from Borsh format.
func DecodeStartContestArgs(data []byte) ([]commitment.Hash, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("start_contest args too short: %d bytes", len(data))
	}

	count := binary.LittleEndian.Uint32(data[0:4])
	body := data[4:]

	if uint64(len(body)) != uint64(count)*commitment.Size {
		return nil, fmt.Errorf("commitment count mismatch: declared %d, have %d bytes", count, len(body))
	}

	return commitment.Split(body)
}

// EncodeTransferArgs encodes transfer arguments in Borsh format.
// Format: [u8; 32] recipient + [u8; 32] amount (big-endian word)
func EncodeTransferArgs(a TransferArgs) []byte {
	buf := make([]byte, 0, identity.Size+amount.Size)
	buf = append(buf, a.To[:]...)

	return append(buf, amount.Encode(a.Amount)...)
}

// DecodeTransferArgs decodes transfer arguments from Borsh format.
func DecodeTransferArgs(data []byte) (TransferArgs, error) {
	if len(data) != identity.Size+amount.Size {
		return TransferArgs{}, fmt.Errorf("invalid transfer args length: %d", len(data))
	}

	var a TransferArgs
	copy(a.To[:], data[:identity.Size])

	value, err := amount.Decode(data[identity.Size:])
	if err != nil {
		return TransferArgs{}, err
	}
	a.Amount = value

	return a, nil
}

// EncodeDepositPoolArgs encodes deposit_pool arguments.
// Format: [u8; 32] amount (big-endian word)
func EncodeDepositPoolArgs(value *uint256.Int) []byte {
	return amount.Encode(value)
}

// DecodeDepositPoolArgs decodes deposit_pool arguments.
func DecodeDepositPoolArgs(data []byte) (*uint256.Int, error) {
	if len(data) != amount.Size {
		return nil, fmt.Errorf("invalid deposit_pool args length: %d", len(data))
	}

	return amount.Decode(data)
}
