// Package invoker is a client-side binding for EIP-3074 style invoker contracts: on-chain programs
// that execute a batch of calls on behalf of an authority account once presented with the
// authority's signature over the batch. The executor submitting the transaction pays the gas, so
// an authority can have its calls sponsored without ever sending a transaction itself.
package invoker

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

const (
	// The entry points shared by the invoker contract deployments this library targets
	invokerAbiString string = "[{\"inputs\":[{\"internalType\":\"bytes\",\"name\":\"execData\",\"type\":\"bytes\"},{\"internalType\":\"uint8\",\"name\":\"v\",\"type\":\"uint8\"},{\"internalType\":\"bytes32\",\"name\":\"r\",\"type\":\"bytes32\"},{\"internalType\":\"bytes32\",\"name\":\"s\",\"type\":\"bytes32\"}],\"name\":\"invoke\",\"outputs\":[],\"stateMutability\":\"payable\",\"type\":\"function\"},{\"inputs\":[{\"internalType\":\"address\",\"name\":\"authority\",\"type\":\"address\"}],\"name\":\"nonces\",\"outputs\":[{\"internalType\":\"uint256\",\"name\":\"\",\"type\":\"uint256\"}],\"stateMutability\":\"view\",\"type\":\"function\"}]"
)

// ABI cache
var invokerAbi *abi.ABI

// Invoker binds an invoker contract deployment to an execution client and the coder describing the
// deployment's wire format. It holds no mutable session state, so a single instance is safe to use
// from multiple goroutines; the authority nonce it reads lives on-chain, and serializing concurrent
// reservations of it is the caller's job (see NonceRegistry).
type Invoker struct {
	// The execution client
	client IExecutionClient

	// The invoker contract address
	contractAddress common.Address

	// The coder for this deployment's exec data layout
	coder Coder

	// The invoker contract ABI
	abi *abi.ABI

	// Event logger, disabled unless configured with WithLogger
	logger zerolog.Logger
}

// Optional Invoker configuration
type InvokerOpt func(*Invoker)

// Configures the Invoker to log sign and execute events to the given logger
func WithLogger(logger zerolog.Logger) InvokerOpt {
	return func(inv *Invoker) {
		inv.logger = logger
	}
}

// Creates a new Invoker bound to the contract at the provided address
func NewInvoker(client IExecutionClient, contractAddress common.Address, coder Coder, opts ...InvokerOpt) (*Invoker, error) {
	if invokerAbi == nil {
		abi, err := abi.JSON(strings.NewReader(invokerAbiString))
		if err != nil {
			return nil, err
		}
		invokerAbi = &abi
	}
	if coder == nil {
		return nil, fmt.Errorf("no coder provided")
	}

	inv := &Invoker{
		client:          client,
		contractAddress: contractAddress,
		coder:           coder,
		abi:             invokerAbi,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// The address of the bound invoker contract
func (inv *Invoker) ContractAddress() common.Address {
	return inv.contractAddress
}

// A request to sign a batch of calls on behalf of an authority
type SignRequest struct {
	// The calls to authorize, in execution order
	Calls CallBatch

	// The signing capability of the account the calls execute on behalf of
	Authority AuthoritySigner

	// The account that will submit the execution transaction
	Executor common.Address

	// Optional expiry timestamp; only valid with an expiry-aware coder
	Expiry *big.Int

	// Optional pre-reserved nonce. When nil the current on-chain nonce is resolved from the
	// contract; reserve through a NonceRegistry when signing concurrently for one authority.
	Nonce *big.Int
}

// The outcome of signing a batch: the auxiliary fields that were resolved, the digest they produce,
// and the authority's signature over exactly that digest
type SignedBatch struct {
	// The replay-protection fields the signature commits to
	Auxiliary Auxiliary `json:"auxiliary"`

	// The digest the authority signed
	Digest common.Hash `json:"digest"`

	// The authority's signature
	Signature Signature `json:"signature"`
}

// A request to submit a previously signed batch of calls
type ExecuteRequest struct {
	// The calls that were signed, in the same order
	Calls CallBatch

	// The address of the authority that signed the batch
	Authority common.Address

	// The signing capability of the account submitting the transaction and paying its gas
	Executor ExecutorSigner

	// The authority's signature over the batch
	Signature Signature

	// The expiry the batch was signed with, if any
	Expiry *big.Int

	// Optional nonce the batch was signed with, from SignedBatch.Auxiliary or a NonceRegistry
	// reservation. Required when the batch was signed ahead of the chain nonce; the current
	// on-chain nonce is used when nil.
	Nonce *big.Int

	// Optional gas limit for the execution transaction; estimated via the client when 0
	GasLimit uint64
}

// Reads the authority's current nonce from the invoker contract
func (inv *Invoker) NonceAt(ctx context.Context, authority common.Address) (*big.Int, error) {
	callData, err := inv.abi.Pack("nonces", authority)
	if err != nil {
		return nil, fmt.Errorf("error packing nonces call: %w", err)
	}
	response, err := inv.client.CallContract(ctx, ethereum.CallMsg{To: &inv.contractAddress, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading nonce for %s: %w", ErrNonceResolution, authority.Hex(), err)
	}
	var nonce *big.Int
	err = inv.abi.UnpackIntoInterface(&nonce, "nonces", response)
	if err != nil {
		return nil, fmt.Errorf("%w: error unpacking nonce response: %w", ErrNonceResolution, err)
	}
	if nonce == nil {
		return nil, fmt.Errorf("%w: received nil nonce for %s", ErrNonceResolution, authority.Hex())
	}
	return nonce, nil
}

// Signs a batch of calls on behalf of the request's authority. The authority's nonce is resolved
// from the contract (unless pre-reserved), the coder turns the batch and nonce into a digest, and
// the authority signs exactly that digest. Nothing is sent on-chain; abandoning the returned
// signature has no on-chain effect.
func (inv *Invoker) Sign(ctx context.Context, request SignRequest) (*SignedBatch, error) {
	if request.Authority == nil {
		return nil, fmt.Errorf("%w: no authority signer provided", ErrSigning)
	}

	nonce := request.Nonce
	if nonce == nil {
		var err error
		nonce, err = inv.NonceAt(ctx, request.Authority.Address())
		if err != nil {
			return nil, err
		}
	}
	aux := Auxiliary{
		Nonce:  nonce,
		Expiry: request.Expiry,
	}

	digestCtx, err := inv.digestContext(ctx, request.Executor)
	if err != nil {
		return nil, err
	}
	digest, err := inv.coder.Digest(request.Calls, aux, digestCtx)
	if err != nil {
		return nil, err
	}

	signature, err := request.Authority.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: authority %s: %w", ErrSigning, request.Authority.Address().Hex(), err)
	}

	inv.logger.Debug().
		Str("authority", request.Authority.Address().Hex()).
		Str("nonce", nonce.String()).
		Int("calls", len(request.Calls)).
		Str("digest", digest.Hex()).
		Msg("signed call batch")
	return &SignedBatch{
		Auxiliary: aux,
		Digest:    digest,
		Signature: signature,
	}, nil
}

// Submits a signed batch to the invoker contract from the request's executor. The auxiliary fields
// and digest are re-derived first and must match the ones from signing time exactly: pass the
// signed nonce in the request when batches were signed ahead of the chain nonce, otherwise the
// current on-chain nonce is used. A nonce consumed since signing fails with ErrStaleNonce before
// anything is broadcast. On success the batch's transaction is in the pending pool and its
// hash is returned; confirmation is not awaited (see ReceiptBatcher). The broadcast cannot be
// undone by cancelling the context afterwards.
func (inv *Invoker) Execute(ctx context.Context, request ExecuteRequest) (common.Hash, error) {
	if request.Executor == nil {
		return common.Hash{}, fmt.Errorf("%w: no executor signer provided", ErrSubmission)
	}

	// Re-derive the auxiliary fields and digest the signature must have committed to, using the
	// nonce from signing time when the caller kept it
	chainNonce, err := inv.NonceAt(ctx, request.Authority)
	if err != nil {
		return common.Hash{}, err
	}
	nonce := request.Nonce
	if nonce == nil {
		nonce = chainNonce
	} else if nonce.Cmp(chainNonce) < 0 {
		return common.Hash{}, fmt.Errorf("%w: nonce %s was already consumed, authority %s is at nonce %s", ErrStaleNonce, nonce.String(), request.Authority.Hex(), chainNonce.String())
	}
	aux := Auxiliary{
		Nonce:  nonce,
		Expiry: request.Expiry,
	}
	digestCtx, err := inv.digestContext(ctx, request.Executor.Address())
	if err != nil {
		return common.Hash{}, err
	}
	digest, err := inv.coder.Digest(request.Calls, aux, digestCtx)
	if err != nil {
		return common.Hash{}, err
	}

	// A signature made over different auxiliary fields, calls, or executor recovers some other
	// address against the re-derived digest
	signer, err := request.Signature.Recover(digest)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: invalid signature: %w", ErrSubmission, err)
	}
	if signer != request.Authority {
		if request.Nonce != nil {
			// The signed nonce is known and still live, so the mismatch is the payload itself,
			// not staleness; re-signing at a fresh nonce won't help
			return common.Hash{}, fmt.Errorf("%w: signature does not match authority %s for this batch and executor at nonce %s", ErrSubmission, request.Authority.Hex(), nonce.String())
		}
		return common.Hash{}, fmt.Errorf("%w: signature does not match authority %s at current chain state (nonce %s); the batch may have been signed at an earlier nonce or over different contents", ErrStaleNonce, request.Authority.Hex(), nonce.String())
	}

	// Build the execution transaction
	execData, err := inv.coder.Encode(request.Calls, aux)
	if err != nil {
		return common.Hash{}, err
	}
	callData, err := inv.abi.Pack("invoke", execData, request.Signature.V, request.Signature.R, request.Signature.S)
	if err != nil {
		return common.Hash{}, fmt.Errorf("error packing invoke call: %w", err)
	}

	executor := request.Executor.Address()
	txNonce, err := inv.client.PendingNonceAt(ctx, executor)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: error getting transaction nonce for %s: %w", ErrSubmission, executor.Hex(), err)
	}
	gasPrice, err := inv.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: error getting gas price: %w", ErrSubmission, err)
	}
	value := request.Calls.TotalValue()
	gasLimit := request.GasLimit
	if gasLimit == 0 {
		gasLimit, err = inv.client.EstimateGas(ctx, ethereum.CallMsg{
			From:     executor,
			To:       &inv.contractAddress,
			GasPrice: gasPrice,
			Value:    value,
			Data:     callData,
		})
		if err != nil {
			// A reverting simulation surfaces here
			return common.Hash{}, fmt.Errorf("%w: error estimating gas: %w", ErrSubmission, err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    txNonce,
		To:       &inv.contractAddress,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     callData,
	})
	signedTx, err := request.Executor.SignTx(tx, digestCtx.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: error signing transaction: %w", ErrSubmission, err)
	}
	err = inv.client.SendTransaction(ctx, signedTx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: error broadcasting transaction: %w", ErrSubmission, err)
	}

	inv.logger.Debug().
		Str("authority", request.Authority.Hex()).
		Str("executor", executor.Hex()).
		Str("nonce", nonce.String()).
		Str("tx", signedTx.Hash().Hex()).
		Msg("submitted call batch")
	return signedTx.Hash(), nil
}

// Builds the digest context from the connected network's identity
func (inv *Invoker) digestContext(ctx context.Context, executor common.Address) (DigestContext, error) {
	chainID, err := inv.client.ChainID(ctx)
	if err != nil {
		return DigestContext{}, fmt.Errorf("%w: error reading chain ID: %w", ErrNonceResolution, err)
	}
	return DigestContext{
		ChainID:  chainID,
		Invoker:  inv.contractAddress,
		Executor: executor,
	}, nil
}
