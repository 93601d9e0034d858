package invoker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// First byte of every digest preimage, so a signed authorization can never collide with a signed transaction
	authMagic byte = 0x03

	// The call count is a uint16 on the wire
	maxBatchSize int = math.MaxUint16

	// Per-call calldata is length-prefixed with a uint32
	maxCallDataSize int = math.MaxUint32
)

// Largest value representable in a 32-byte field
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PackedCoder implements the packed exec data layout shared by the reference invoker contracts.
// All integers are big-endian:
//
//	nonce (32) | expiry (32, expiry layout only) | count (2) |
//	count * { to (20) | value (32) | gas (8) | dataLen (4) | data }
//
// The digest is keccak256 over:
//
//	0x03 | chainID (32) | invoker address (32, left-padded) |
//	executor address (32, left-padded, executor-binding coders only) | keccak256(execData)
type PackedCoder struct {
	// Whether the layout carries an expiry timestamp after the nonce
	WithExpiry bool

	// Whether the digest commits to the executor's identity, restricting who may submit the batch
	BindExecutor bool
}

// Creates a coder for contracts whose authorizations are replay-protected by a nonce alone
func NewBatchNonceCoder() *PackedCoder {
	return &PackedCoder{}
}

// Creates a coder for contracts whose authorizations carry an expiry timestamp in addition to the nonce
func NewBatchExpiryCoder() *PackedCoder {
	return &PackedCoder{WithExpiry: true}
}

// Serializes a call batch and its auxiliary fields into exec data
func (c *PackedCoder) Encode(batch CallBatch, aux Auxiliary) ([]byte, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", ErrEncoding)
	}
	if len(batch) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch has %d calls, limit is %d", ErrEncoding, len(batch), maxBatchSize)
	}
	if err := checkUint256("nonce", aux.Nonce); err != nil {
		return nil, err
	}
	if c.WithExpiry {
		if err := checkUint256("expiry", aux.Expiry); err != nil {
			return nil, err
		}
	} else if aux.Expiry != nil {
		return nil, fmt.Errorf("%w: expiry is not supported by this layout", ErrEncoding)
	}

	buf := new(bytes.Buffer)
	buf.Write(common.BigToHash(aux.Nonce).Bytes())
	if c.WithExpiry {
		buf.Write(common.BigToHash(aux.Expiry).Bytes())
	}
	binary.Write(buf, binary.BigEndian, uint16(len(batch)))
	for i, call := range batch {
		if err := checkUint256(fmt.Sprintf("call %d value", i), call.Value); err != nil {
			return nil, err
		}
		if len(call.Data) > maxCallDataSize {
			return nil, fmt.Errorf("%w: call %d data is %d bytes, limit is %d", ErrEncoding, i, len(call.Data), maxCallDataSize)
		}
		buf.Write(call.To.Bytes())
		buf.Write(common.BigToHash(call.Value).Bytes())
		binary.Write(buf, binary.BigEndian, call.Gas)
		binary.Write(buf, binary.BigEndian, uint32(len(call.Data)))
		buf.Write(call.Data)
	}
	return buf.Bytes(), nil
}

// Parses exec data produced by Encode back into the call batch and auxiliary fields
func (c *PackedCoder) Decode(data []byte) (CallBatch, Auxiliary, error) {
	r := bytes.NewReader(data)
	aux := Auxiliary{}

	nonce, err := readWord(r, "nonce")
	if err != nil {
		return nil, Auxiliary{}, err
	}
	aux.Nonce = nonce
	if c.WithExpiry {
		expiry, err := readWord(r, "expiry")
		if err != nil {
			return nil, Auxiliary{}, err
		}
		aux.Expiry = expiry
	}

	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, Auxiliary{}, fmt.Errorf("%w: truncated call count", ErrDecoding)
	}
	if count == 0 {
		return nil, Auxiliary{}, fmt.Errorf("%w: batch is empty", ErrDecoding)
	}
	// Each call occupies at least 64 bytes on the wire
	if int(count)*64 > r.Len() {
		return nil, Auxiliary{}, fmt.Errorf("%w: call count %d exceeds remaining input", ErrDecoding, count)
	}

	batch := make(CallBatch, count)
	for i := range batch {
		to := make([]byte, common.AddressLength)
		if _, err := io.ReadFull(r, to); err != nil {
			return nil, Auxiliary{}, fmt.Errorf("%w: truncated call %d destination", ErrDecoding, i)
		}
		value, err := readWord(r, fmt.Sprintf("call %d value", i))
		if err != nil {
			return nil, Auxiliary{}, err
		}
		var gas uint64
		if err := binary.Read(r, binary.BigEndian, &gas); err != nil {
			return nil, Auxiliary{}, fmt.Errorf("%w: truncated call %d gas", ErrDecoding, i)
		}
		var dataLen uint32
		if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
			return nil, Auxiliary{}, fmt.Errorf("%w: truncated call %d data length", ErrDecoding, i)
		}
		var callData []byte
		if dataLen > 0 {
			// Check the claimed length against what's actually left before allocating
			if int64(dataLen) > int64(r.Len()) {
				return nil, Auxiliary{}, fmt.Errorf("%w: call %d data length %d exceeds remaining input", ErrDecoding, i, dataLen)
			}
			callData = make([]byte, dataLen)
			if _, err := io.ReadFull(r, callData); err != nil {
				return nil, Auxiliary{}, fmt.Errorf("%w: truncated call %d data", ErrDecoding, i)
			}
		}
		batch[i] = Call{
			To:    common.BytesToAddress(to),
			Value: value,
			Data:  callData,
			Gas:   gas,
		}
	}

	if r.Len() != 0 {
		return nil, Auxiliary{}, fmt.Errorf("%w: %d trailing bytes after call batch", ErrDecoding, r.Len())
	}
	return batch, aux, nil
}

// Computes the digest the authority must sign for this batch
func (c *PackedCoder) Digest(batch CallBatch, aux Auxiliary, digestCtx DigestContext) (common.Hash, error) {
	if digestCtx.ChainID == nil {
		return common.Hash{}, fmt.Errorf("%w: digest context is missing a chain ID", ErrEncoding)
	}
	execData, err := c.Encode(batch, aux)
	if err != nil {
		return common.Hash{}, err
	}

	preimage := make([]byte, 0, 1+4*common.HashLength)
	preimage = append(preimage, authMagic)
	preimage = append(preimage, common.BigToHash(digestCtx.ChainID).Bytes()...)
	preimage = append(preimage, common.BytesToHash(digestCtx.Invoker.Bytes()).Bytes()...)
	if c.BindExecutor {
		preimage = append(preimage, common.BytesToHash(digestCtx.Executor.Bytes()).Bytes()...)
	}
	preimage = append(preimage, crypto.Keccak256(execData)...)
	return crypto.Keccak256Hash(preimage), nil
}

// Validates that a value fits in a 32-byte unsigned field
func checkUint256(name string, value *big.Int) error {
	if value == nil {
		return fmt.Errorf("%w: %s is nil", ErrEncoding, name)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrEncoding, name)
	}
	if value.Cmp(maxUint256) > 0 {
		return fmt.Errorf("%w: %s exceeds 32 bytes", ErrEncoding, name)
	}
	return nil
}

// Reads one 32-byte big-endian word
func readWord(r *bytes.Reader, name string) (*big.Int, error) {
	word := make([]byte, common.HashLength)
	if _, err := io.ReadFull(r, word); err != nil {
		return nil, fmt.Errorf("%w: truncated %s", ErrDecoding, name)
	}
	return new(big.Int).SetBytes(word), nil
}
