package invoker

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const (
	// Well-known development keys
	testAuthorityKey string = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testExecutorKey  string = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

func mustKeySigner(t *testing.T, keyHex string) *KeySigner {
	t.Helper()
	key, err := crypto.HexToECDSA(keyHex)
	require.NoError(t, err)
	return NewKeySigner(key)
}

func TestKeySignerSignAndVerify(t *testing.T) {
	signer := mustKeySigner(t, testAuthorityKey)
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), signer.Address())

	digest := crypto.Keccak256Hash([]byte("authorization payload"))
	signature, err := signer.SignDigest(digest)
	require.NoError(t, err)
	require.Contains(t, []uint8{27, 28}, signature.V)

	recovered, err := signature.Recover(digest)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), recovered)
	require.True(t, signature.Verify(digest, signer.Address()))
}

// A signature is only valid for the exact digest it was produced over and the account that made it
func TestSignatureBinding(t *testing.T) {
	signer := mustKeySigner(t, testAuthorityKey)
	other := mustKeySigner(t, testExecutorKey)

	digest := crypto.Keccak256Hash([]byte("authorization payload"))
	signature, err := signer.SignDigest(digest)
	require.NoError(t, err)

	require.False(t, signature.Verify(digest, other.Address()))

	otherDigest := crypto.Keccak256Hash([]byte("a different payload"))
	require.False(t, signature.Verify(otherDigest, signer.Address()))
}

func TestNewSignatureRejectsBadLength(t *testing.T) {
	_, err := NewSignature(make([]byte, 64))
	require.ErrorIs(t, err, ErrSigning)
}

func TestSignatureRejectsBadRecoveryValue(t *testing.T) {
	bad := Signature{V: 5}
	_, err := bad.Bytes()
	require.ErrorIs(t, err, ErrSigning)
	_, err = bad.Recover(common.Hash{})
	require.ErrorIs(t, err, ErrSigning)
}

func TestNewKeySignerFromBytes(t *testing.T) {
	raw := common.FromHex(testAuthorityKey)
	signer, err := NewKeySignerFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), signer.Address())

	_, err = NewKeySignerFromBytes(raw[:16])
	require.Error(t, err)
}
