package invoker

import (
	"errors"
)

var (
	// A call batch could not be serialized because one of its fields is malformed or out of range
	ErrEncoding = errors.New("invalid call batch")

	// Wire bytes could not be parsed back into a call batch
	ErrDecoding = errors.New("malformed exec data")

	// The authority's nonce (or other chain state needed for the digest) could not be resolved from the client
	ErrNonceResolution = errors.New("nonce resolution failed")

	// The authority's signing capability failed or refused to produce a signature
	ErrSigning = errors.New("authority signing failed")

	// The nonce the signature commits to was consumed before the batch could be executed
	ErrStaleNonce = errors.New("authorization nonce is stale")

	// The execution client rejected the transaction or failed to broadcast it
	ErrSubmission = errors.New("transaction submission failed")
)
