package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ReceiptReader reads a transaction receipt from a chain-specific endpoint.
// A nil receipt with a nil error means the transaction is not yet mined.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, chainID int64, txHash common.Hash) (*types.Receipt, error)
}

// RPCReceiptReader implements ReceiptReader over raw JSON-RPC clients, one
// per configured chain. It has read-only access: receipts by hash, nothing
// else.
type RPCReceiptReader struct {
	clients map[int64]*rpc.Client
}

// NewRPCReceiptReader dials every configured RPC endpoint up front so a
// misconfigured URL fails at startup rather than mid-plan.
func NewRPCReceiptReader(endpoints map[int64]string) (*RPCReceiptReader, error) {
	clients := make(map[int64]*rpc.Client, len(endpoints))
	for chainID, url := range endpoints {
		client, err := rpc.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("chain: dial rpc for chain %d: %w", chainID, err)
		}
		clients[chainID] = client
	}
	return &RPCReceiptReader{clients: clients}, nil
}

// TransactionReceipt fetches a receipt by hash. It returns (nil, nil) while
// the transaction is pending.
func (r *RPCReceiptReader) TransactionReceipt(ctx context.Context, chainID int64, txHash common.Hash) (*types.Receipt, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("chain: no rpc endpoint configured for chain %d", chainID)
	}

	var receipt *types.Receipt
	if err := client.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, fmt.Errorf("chain: receipt %s on chain %d: %w", txHash.Hex(), chainID, err)
	}
	return receipt, nil
}

// Close releases all RPC connections.
func (r *RPCReceiptReader) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}
