package invoker

import (
	"github.com/ethereum/go-ethereum/common"
)

// A Coder defines the exact wire encoding an invoker contract expects for a batch of calls, and the
// digest an authority signs to authorize that batch. Different contract deployments use different
// layouts, so the coder is chosen when the invoker binding is constructed.
//
// Coders are pure and stateless; all implementations must be safe for concurrent use.
type Coder interface {
	// Serializes a call batch and its auxiliary fields into exec data.
	// The encoding is deterministic and order-preserving.
	Encode(batch CallBatch, aux Auxiliary) ([]byte, error)

	// Parses exec data back into a call batch and auxiliary fields.
	// Exact inverse of Encode: Decode(Encode(b, a)) returns (b, a) for all valid inputs.
	Decode(data []byte) (CallBatch, Auxiliary, error)

	// Computes the digest the authority must sign for this batch.
	// A pure function of its inputs; the context pins the digest to one chain and one contract.
	Digest(batch CallBatch, aux Auxiliary, digestCtx DigestContext) (common.Hash, error)
}
