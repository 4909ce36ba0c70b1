// Package request builds and checks signed transactions.
package request

import (
	"crypto/ed25519"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"Baguette/internal/types"
)

// Function names accepted by the API.
const (
	FnSubmitFlag   = "submit_flag"
	FnStartContest = "start_contest"
	FnTransfer     = "transfer"
	FnDepositPool  = "deposit_pool"
)

const (
	// HashSize is the size of a transaction hash.
	HashSize = 32

	// SenderSize is the size of an Ed25519 public key.
	SenderSize = ed25519.PublicKeySize

	// SignatureSize is the size of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
)

// BuildSigned creates a signed Transaction.
// Returns the serialized bytes and the transaction hash.
func BuildSigned(privKey ed25519.PrivateKey, funcName string, args []byte, nonce uint64) ([]byte, [32]byte) {
	pubKey := privKey.Public().(ed25519.PublicKey)

	// Build unsigned tx first to compute hash
	unsignedBytes := BuildUnsigned(pubKey, funcName, args, nonce)
	hash := blake3.Sum256(unsignedBytes)
	sig := ed25519.Sign(privKey, hash[:])

	builder := flatbuffers.NewBuilder(512)
	txOffset := buildTxTable(builder, pubKey, funcName, args, nonce, hash, sig)
	builder.Finish(txOffset)

	return builder.FinishedBytes(), hash
}

// buildTxTable builds a Transaction table in the given builder.
func buildTxTable(builder *flatbuffers.Builder, sender []byte, funcName string, args []byte, nonce uint64, hash [32]byte, sig []byte) flatbuffers.UOffsetT {
	hashVec := builder.CreateByteVector(hash[:])
	sigVec := builder.CreateByteVector(sig)
	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(sender)
	funcNameOff := builder.CreateString(funcName)

	types.TransactionStart(builder)
	types.TransactionAddHash(builder, hashVec)
	types.TransactionAddSender(builder, senderVec)
	types.TransactionAddSignature(builder, sigVec)
	types.TransactionAddFunctionName(builder, funcNameOff)
	types.TransactionAddArgs(builder, argsVec)
	types.TransactionAddNonce(builder, nonce)

	return types.TransactionEnd(builder)
}

// BuildUnsigned creates transaction bytes without hash and signature for hashing.
// Client and server must build these bytes identically.
func BuildUnsigned(sender []byte, funcName string, args []byte, nonce uint64) []byte {
	builder := flatbuffers.NewBuilder(512)

	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(sender)
	funcNameOff := builder.CreateString(funcName)

	types.TransactionStart(builder)
	types.TransactionAddSender(builder, senderVec)
	types.TransactionAddFunctionName(builder, funcNameOff)
	types.TransactionAddArgs(builder, argsVec)
	types.TransactionAddNonce(builder, nonce)
	txOff := types.TransactionEnd(builder)

	builder.Finish(txOff)

	return builder.FinishedBytes()
}

// Parse decodes and authenticates a raw Transaction.
// It checks field sizes, the declared hash and the Ed25519 signature.
func Parse(data []byte) (tx *types.Transaction, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			tx = nil
			retErr = fmt.Errorf("malformed transaction data")
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("transaction data too short")
	}

	tx = types.GetRootAsTransaction(data, 0)

	if err := validateFieldSizes(tx); err != nil {
		return nil, err
	}

	if err := validateHash(tx); err != nil {
		return nil, err
	}

	if err := validateSignature(tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// validateFieldSizes checks that all fixed-size fields have the correct length.
func validateFieldSizes(tx *types.Transaction) error {
	if len(tx.HashBytes()) != HashSize {
		return fmt.Errorf("invalid hash size: got %d, want %d", len(tx.HashBytes()), HashSize)
	}

	if len(tx.SenderBytes()) != SenderSize {
		return fmt.Errorf("invalid sender size: got %d, want %d", len(tx.SenderBytes()), SenderSize)
	}

	if len(tx.SignatureBytes()) != SignatureSize {
		return fmt.Errorf("invalid signature size: got %d, want %d", len(tx.SignatureBytes()), SignatureSize)
	}

	if len(tx.FunctionName()) == 0 {
		return fmt.Errorf("empty function name")
	}

	return nil
}

// validateHash recomputes the transaction hash and compares it to the declared hash.
func validateHash(tx *types.Transaction) error {
	unsignedBytes := BuildUnsigned(tx.SenderBytes(), string(tx.FunctionName()), tx.ArgsBytes(), tx.Nonce())
	expected := blake3.Sum256(unsignedBytes)

	hash := tx.HashBytes()

	for i := 0; i < HashSize; i++ {
		if hash[i] != expected[i] {
			return fmt.Errorf("hash mismatch")
		}
	}

	return nil
}

// validateSignature verifies the Ed25519 signature over the transaction hash.
func validateSignature(tx *types.Transaction) error {
	if !ed25519.Verify(tx.SenderBytes(), tx.HashBytes(), tx.SignatureBytes()) {
		return fmt.Errorf("invalid signature")
	}

	return nil
}
