// Package chain wraps a user-controlled wallet provider: chain switching,
// single-transaction signing, and polling-based receipt confirmation. The
// signing key never lives in this process; every signature is produced by
// the provider on the user's side.
package chain

import (
	"context"
	"fmt"
	"math/big"
)

// TxRequest is the raw transaction payload handed to the wallet provider.
type TxRequest struct {
	ChainID int64    `json:"chainId"`
	To      string   `json:"to"`
	Data    string   `json:"data"`
	Value   *big.Int `json:"value"`
}

// WalletProvider is the seam to the injected wallet. Implementations are not
// uniform: any call may fail with a provider-specific user-cancellation code
// that ClassifySigningError knows how to recognize.
type WalletProvider interface {
	// ActiveChain returns the chain the provider is currently connected to.
	ActiveChain(ctx context.Context) (int64, error)
	// RequestChainSwitch asks the provider to switch its active chain.
	RequestChainSwitch(ctx context.Context, chainID int64) error
	// SignAndBroadcast asks the provider to sign and submit the transaction,
	// returning the transaction hash.
	SignAndBroadcast(ctx context.Context, tx TxRequest) (string, error)
}

// ProviderError is a structured error reported by a wallet provider. Code
// follows EIP-1193 conventions where the provider supports them.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}
