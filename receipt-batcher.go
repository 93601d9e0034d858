package invoker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// This struct can observe the fate of many submitted batch executions within a bounded number of
// simultaneous client calls. A submitted transaction is outside this library's control; its status
// is whatever the chain reports: still pending, confirmed, reverted, or dropped from the pool.
type ReceiptBatcher struct {
	// The number of lookups to run simultaneously
	ThreadLimit int

	// The Execution client binding
	client IReceiptReader
}

// Creates a new ReceiptBatcher instance
func NewReceiptBatcher(client IReceiptReader, threadLimit int) (*ReceiptBatcher, error) {
	if threadLimit < 1 {
		return nil, fmt.Errorf("thread limit must be positive, got %d", threadLimit)
	}
	return &ReceiptBatcher{
		client:      client,
		ThreadLimit: threadLimit,
	}, nil
}

// Retrieves the batch status for a list of transaction hashes. The order of the resulting array
// corresponds to the order of the provided hashes.
func (b *ReceiptBatcher) GetStatuses(ctx context.Context, hashes []common.Hash) ([]BatchStatus, error) {
	statuses := make([]BatchStatus, len(hashes))
	var wg errgroup.Group
	wg.SetLimit(b.ThreadLimit)

	for i, hash := range hashes {
		i := i
		hash := hash

		wg.Go(func() error {
			receipt, err := b.client.TransactionReceipt(ctx, hash)
			if err == nil {
				if receipt.Status == types.ReceiptStatusSuccessful {
					statuses[i] = BatchStatusConfirmed
				} else {
					statuses[i] = BatchStatusReverted
				}
				return nil
			}
			if !errors.Is(err, ethereum.NotFound) {
				return fmt.Errorf("error getting receipt for %s: %w", hash.Hex(), err)
			}

			// No receipt yet; check whether the pool still knows the transaction
			_, _, err = b.client.TransactionByHash(ctx, hash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					statuses[i] = BatchStatusDropped
					return nil
				}
				return fmt.Errorf("error getting transaction %s: %w", hash.Hex(), err)
			}
			statuses[i] = BatchStatusPending
			return nil
		})
	}

	err := wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("error getting batch statuses: %w", err)
	}

	return statuses, nil
}
