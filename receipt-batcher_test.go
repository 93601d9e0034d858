package invoker

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// A fake client that reports canned receipts and pool contents
type testReceiptReader struct {
	receipts map[common.Hash]*types.Receipt
	pool     map[common.Hash]*types.Transaction
	err      error
}

func (c *testReceiptReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if c.err != nil {
		return nil, c.err
	}
	receipt, exists := c.receipts[txHash]
	if !exists {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *testReceiptReader) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	tx, exists := c.pool[txHash]
	if !exists {
		return nil, false, ethereum.NotFound
	}
	return tx, true, nil
}

func TestReceiptBatcherStatuses(t *testing.T) {
	confirmed := common.HexToHash("0x01")
	reverted := common.HexToHash("0x02")
	pending := common.HexToHash("0x03")
	dropped := common.HexToHash("0x04")

	client := &testReceiptReader{
		receipts: map[common.Hash]*types.Receipt{
			confirmed: {Status: types.ReceiptStatusSuccessful},
			reverted:  {Status: types.ReceiptStatusFailed},
		},
		pool: map[common.Hash]*types.Transaction{
			pending: types.NewTx(&types.LegacyTx{}),
		},
	}
	batcher, err := NewReceiptBatcher(client, 2)
	require.NoError(t, err)

	statuses, err := batcher.GetStatuses(context.Background(), []common.Hash{confirmed, reverted, pending, dropped})
	require.NoError(t, err)
	require.Equal(t, []BatchStatus{
		BatchStatusConfirmed,
		BatchStatusReverted,
		BatchStatusPending,
		BatchStatusDropped,
	}, statuses)
}

func TestReceiptBatcherClientFailure(t *testing.T) {
	client := &testReceiptReader{
		err: errors.New("connection refused"),
	}
	batcher, err := NewReceiptBatcher(client, 4)
	require.NoError(t, err)

	_, err = batcher.GetStatuses(context.Background(), []common.Hash{common.HexToHash("0x01")})
	require.Error(t, err)
}

func TestReceiptBatcherRejectsBadThreadLimit(t *testing.T) {
	_, err := NewReceiptBatcher(&testReceiptReader{}, 0)
	require.Error(t, err)
}

func TestBatchStatusString(t *testing.T) {
	require.Equal(t, "pending", BatchStatusPending.String())
	require.Equal(t, "confirmed", BatchStatusConfirmed.String())
	require.Equal(t, "reverted", BatchStatusReverted.String())
	require.Equal(t, "dropped", BatchStatusDropped.String())
}
