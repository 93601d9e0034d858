package invoker

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// A secp256k1 signature over an auth digest, split into the (v, r, s) form the invoker contract's
// ecrecover expects. V carries the Ethereum convention of 27 or 28.
type Signature struct {
	R [32]byte `json:"r"`
	S [32]byte `json:"s"`
	V uint8    `json:"v"`
}

// Creates a Signature from the 65-byte [R || S || recovery ID] form produced by crypto.Sign
func NewSignature(sig []byte) (Signature, error) {
	if len(sig) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("%w: signature is %d bytes, expected %d", ErrSigning, len(sig), crypto.SignatureLength)
	}
	out := Signature{
		V: sig[crypto.SignatureLength-1] + 27,
	}
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	return out, nil
}

// Returns the signature in the 65-byte [R || S || recovery ID] form used by crypto.SigToPub
func (s Signature) Bytes() ([]byte, error) {
	if s.V != 27 && s.V != 28 {
		return nil, fmt.Errorf("%w: invalid recovery value %d", ErrSigning, s.V)
	}
	out := make([]byte, crypto.SignatureLength)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[crypto.SignatureLength-1] = s.V - 27
	return out, nil
}

// Recovers the address that signed the given digest
func (s Signature) Recover(digest common.Hash) (common.Address, error) {
	raw, err := s.Bytes()
	if err != nil {
		return common.Address{}, err
	}
	pubkey, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("error recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// Reports whether the signature over the given digest was produced by the given authority.
// A signature only verifies against the exact digest it was produced for.
func (s Signature) Verify(digest common.Hash, authority common.Address) bool {
	signer, err := s.Recover(digest)
	if err != nil {
		return false
	}
	return signer == authority
}

// The signing capability of an authority account: the account on whose behalf a batch executes.
// Key material behind the digest signing is opaque to this library.
type AuthoritySigner interface {
	// The address of the authority account
	Address() common.Address

	// Signs the given 32-byte auth digest
	SignDigest(digest common.Hash) (Signature, error)
}

// The signing capability of an executor account: the account that submits the execution
// transaction and pays its gas. May be backed by the same key as an AuthoritySigner.
type ExecutorSigner interface {
	// The address of the executor account
	Address() common.Address

	// Signs an execution transaction for the given chain
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// An in-memory secp256k1 key. It can act as both the authority and the executor, which covers the
// common case of an account sponsoring its own batched calls.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// Creates a new KeySigner from an ECDSA private key
func NewKeySigner(privateKey *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Creates a new KeySigner from a raw 32-byte secp256k1 private key
func NewKeySignerFromBytes(privateKey []byte) (*KeySigner, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("error parsing private key: %w", err)
	}
	return NewKeySigner(key), nil
}

// The address of the account backing this key
func (s *KeySigner) Address() common.Address {
	return s.address
}

// Signs the given 32-byte auth digest
func (s *KeySigner) SignDigest(digest common.Hash) (Signature, error) {
	sig, err := crypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("error signing digest: %w", err)
	}
	return NewSignature(sig)
}

// Signs an execution transaction for the given chain
func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}
