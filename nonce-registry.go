package invoker

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// Identifies one authority's nonce sequence on one invoker contract deployment
type nonceKey struct {
	contract  common.Address
	authority common.Address
}

func (k nonceKey) String() string {
	return k.contract.Hex() + "/" + k.authority.Hex()
}

// NonceRegistry coordinates nonce reservation when multiple goroutines sign batches for the same
// authority. Two concurrent signatures over the same nonce can only execute once, so reservations
// are serialized: the first reservation for an (authority, contract) pair reads the on-chain nonce
// (concurrent first reads share a single client call), and every subsequent reservation hands out
// the next consecutive value.
//
// The registry assumes every reserved nonce is eventually executed. If an execution fails or is
// abandoned, call Forget so the next reservation re-reads the chain.
type NonceRegistry struct {
	lock  sync.Mutex
	group singleflight.Group

	// The next unreserved nonce per key
	next map[nonceKey]*big.Int
}

// Creates a new NonceRegistry
func NewNonceRegistry() *NonceRegistry {
	return &NonceRegistry{
		next: map[nonceKey]*big.Int{},
	}
}

// Reserves the next nonce for the authority on the given invoker's contract. Pass the result as
// SignRequest.Nonce so concurrent signers don't race for the same value.
func (r *NonceRegistry) Reserve(ctx context.Context, inv *Invoker, authority common.Address) (*big.Int, error) {
	key := nonceKey{
		contract:  inv.ContractAddress(),
		authority: authority,
	}

	r.lock.Lock()
	if next, exists := r.next[key]; exists {
		r.next[key] = new(big.Int).Add(next, common.Big1)
		r.lock.Unlock()
		return next, nil
	}
	r.lock.Unlock()

	// First reservation for this key; concurrent callers share one on-chain read
	result, err, _ := r.group.Do(key.String(), func() (any, error) {
		return inv.NonceAt(ctx, authority)
	})
	if err != nil {
		return nil, err
	}
	onChain := result.(*big.Int)

	r.lock.Lock()
	defer r.lock.Unlock()
	next, exists := r.next[key]
	if !exists {
		next = onChain
	}
	r.next[key] = new(big.Int).Add(next, common.Big1)
	return next, nil
}

// Drops the registry's local nonce sequence for the authority on the given contract, forcing the
// next reservation to re-read the chain. Call this after a failed or abandoned execution.
func (r *NonceRegistry) Forget(contract common.Address, authority common.Address) {
	key := nonceKey{
		contract:  contract,
		authority: authority,
	}
	r.lock.Lock()
	delete(r.next, key)
	r.lock.Unlock()
}
