package request

import (
	"crypto/ed25519"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"Baguette/internal/commitment"
	"Baguette/internal/identity"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	return priv
}

func TestBuildSigned_Parse(t *testing.T) {
	priv := newKey(t)
	args := EncodeSubmitFlagArgs(SubmitFlagArgs{ContestID: 2, Slot: 1, Flag: "baguette{x}"})

	data, hash := BuildSigned(priv, FnSubmitFlag, args, 9)

	tx, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, hash[:], tx.HashBytes())
	require.Equal(t, FnSubmitFlag, string(tx.FunctionName()))
	require.Equal(t, uint64(9), tx.Nonce())
	require.Equal(t, []byte(priv.Public().(ed25519.PublicKey)), tx.SenderBytes())
}

func TestBuildSigned_NonceChangesHash(t *testing.T) {
	priv := newKey(t)

	_, h1 := BuildSigned(priv, FnDepositPool, nil, 1)
	_, h2 := BuildSigned(priv, FnDepositPool, nil, 2)

	require.NotEqual(t, h1, h2)
}

func TestParse_Rejects(t *testing.T) {
	priv := newKey(t)
	t.Run("too short", func(t *testing.T) {
		_, err := Parse([]byte{1, 2})
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Parse([]byte{0xFF, 0xFF, 0xFF, 0x7F, 1, 2, 3, 4, 5, 6})
		require.Error(t, err)
	})

	t.Run("hash mismatch", func(t *testing.T) {
		pub := priv.Public().(ed25519.PublicKey)
		hash := blake3.Sum256(BuildUnsigned(pub, FnSubmitFlag, []byte{1, 2, 3}, 0))
		sig := ed25519.Sign(priv, hash[:])

		_, err := Parse(buildRaw(pub, FnSubmitFlag, []byte{1, 2, 4}, 0, hash, sig))
		require.ErrorContains(t, err, "hash mismatch")
	})

	t.Run("bad signature", func(t *testing.T) {
		pub := priv.Public().(ed25519.PublicKey)
		hash := blake3.Sum256(BuildUnsigned(pub, FnSubmitFlag, nil, 0))
		sig := ed25519.Sign(newKey(t), hash[:])

		_, err := Parse(buildRaw(pub, FnSubmitFlag, nil, 0, hash, sig))
		require.ErrorContains(t, err, "invalid signature")
	})

	t.Run("short signature", func(t *testing.T) {
		pub := priv.Public().(ed25519.PublicKey)
		hash := blake3.Sum256(BuildUnsigned(pub, FnSubmitFlag, nil, 0))

		_, err := Parse(buildRaw(pub, FnSubmitFlag, nil, 0, hash, make([]byte, 10)))
		require.ErrorContains(t, err, "invalid signature size")
	})
}

// buildRaw assembles a Transaction with caller-chosen hash and signature.
func buildRaw(sender []byte, funcName string, args []byte, nonce uint64, hash [32]byte, sig []byte) []byte {
	builder := flatbuffers.NewBuilder(512)
	builder.Finish(buildTxTable(builder, sender, funcName, args, nonce, hash, sig))

	return builder.FinishedBytes()
}

func TestSubmitFlagArgs(t *testing.T) {
	in := SubmitFlagArgs{ContestID: 1 << 40, Slot: 13, Flag: "baguette{ünïcode}"}

	out, err := DecodeSubmitFlagArgs(EncodeSubmitFlagArgs(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = DecodeSubmitFlagArgs([]byte{1, 2, 3})
	require.Error(t, err)

	data := EncodeSubmitFlagArgs(in)
	_, err = DecodeSubmitFlagArgs(data[:len(data)-1])
	require.Error(t, err)
}

func TestStartContestArgs(t *testing.T) {
	in := []commitment.Hash{commitment.Of("a"), commitment.Of("b")}

	out, err := DecodeStartContestArgs(EncodeStartContestArgs(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	data := EncodeStartContestArgs(in)
	data[0] = 3
	_, err = DecodeStartContestArgs(data)
	require.Error(t, err)
}

func TestTransferArgs(t *testing.T) {
	in := TransferArgs{To: identity.Address{7}, Amount: uint256.NewInt(1234)}

	out, err := DecodeTransferArgs(EncodeTransferArgs(in))
	require.NoError(t, err)
	require.Equal(t, in.To, out.To)
	require.True(t, in.Amount.Eq(out.Amount))

	_, err = DecodeTransferArgs(make([]byte, 10))
	require.Error(t, err)
}

func TestDepositPoolArgs(t *testing.T) {
	out, err := DecodeDepositPoolArgs(EncodeDepositPoolArgs(uint256.NewInt(42)))
	require.NoError(t, err)
	require.Equal(t, uint64(42), out.Uint64())

	_, err = DecodeDepositPoolArgs(nil)
	require.Error(t, err)
}
