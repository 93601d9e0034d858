package invoker

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// This is an Execution client binding that can call a contract function
type IContractCaller interface {
	// Calls a contract function, typically using eth_call
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// This is an Execution client binding that can build and broadcast transactions in addition to calling contract functions.
// It is satisfied by ethclient.Client.
type IExecutionClient interface {
	IContractCaller

	// Returns the chain ID of the connected network
	ChainID(ctx context.Context) (*big.Int, error)

	// Returns the next transaction nonce for the given account, including pending transactions
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// Suggests a gas price for a new transaction
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// Estimates the gas needed to execute the given call against the pending state
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)

	// Broadcasts a signed transaction to the network
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// This is an Execution client binding that can look up submitted transactions and their receipts
type IReceiptReader interface {
	// Returns the receipt of a mined transaction, or ethereum.NotFound if it hasn't been mined
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Returns the transaction with the given hash, and whether it is still pending
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

// A single action to be performed on-chain on behalf of an authority.
// Calls are immutable once constructed.
type Call struct {
	// The destination address of the call
	To common.Address `json:"to"`

	// The amount of native currency to send with the call, in wei
	Value *big.Int `json:"value"`

	// Optional calldata for the destination
	Data []byte `json:"data"`

	// Optional gas limit for this call; 0 lets the contract forward all remaining gas
	Gas uint64 `json:"gas"`
}

// Creates a new Call from a raw destination address, validating its length
func NewCall(to []byte, value *big.Int, data []byte, gas uint64) (Call, error) {
	if len(to) != common.AddressLength {
		return Call{}, fmt.Errorf("%w: destination address is %d bytes, expected %d", ErrEncoding, len(to), common.AddressLength)
	}
	return Call{
		To:    common.BytesToAddress(to),
		Value: value,
		Data:  data,
		Gas:   gas,
	}, nil
}

// An ordered sequence of calls; the order is the on-chain execution order and is preserved through encode and decode
type CallBatch []Call

// Returns the total native currency carried by the batch, which the execution transaction must fund
func (b CallBatch) TotalValue() *big.Int {
	total := big.NewInt(0)
	for _, call := range b {
		if call.Value != nil {
			total.Add(total, call.Value)
		}
	}
	return total
}

// The replay-protection fields encoded alongside a call batch
type Auxiliary struct {
	// The authority's nonce on the invoker contract
	Nonce *big.Int `json:"nonce"`

	// Optional timestamp after which the authorization is no longer valid; only used by expiry-aware coders
	Expiry *big.Int `json:"expiry,omitempty"`
}

// The chain and contract identity a digest commits to, preventing cross-chain and cross-contract replay
type DigestContext struct {
	// The chain ID of the target network
	ChainID *big.Int

	// The address of the invoker contract
	Invoker common.Address

	// The account that will submit the execution transaction; only committed to by executor-binding coders
	Executor common.Address
}

// The observed state of a submitted batch execution transaction
type BatchStatus int

const (
	// The transaction is known to the network but not yet mined
	BatchStatusPending BatchStatus = iota

	// The transaction was mined and the batch executed successfully
	BatchStatusConfirmed

	// The transaction was mined but the execution reverted
	BatchStatusReverted

	// The transaction is no longer known to the network
	BatchStatusDropped
)

// Human-readable name for the status
func (s BatchStatus) String() string {
	switch s {
	case BatchStatusPending:
		return "pending"
	case BatchStatusConfirmed:
		return "confirmed"
	case BatchStatusReverted:
		return "reverted"
	case BatchStatusDropped:
		return "dropped"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}
