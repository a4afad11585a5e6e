package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// BridgeTxStatus is the lifecycle of a queued agent-proposed transaction.
// An entry never leaves awaiting_review except through an explicit user
// action: Confirm hands it to the signing session, Reject terminates it.
type BridgeTxStatus string

const (
	BridgeStatusAwaitingReview BridgeTxStatus = "awaiting_review"
	BridgeStatusBroadcasted    BridgeTxStatus = "broadcasted"
	BridgeStatusRejected       BridgeTxStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s BridgeTxStatus) Terminal() bool {
	return s == BridgeStatusBroadcasted || s == BridgeStatusRejected
}

// PendingBridgeTransaction is a durable mailbox entry: a transaction proposed
// by autonomous strategy logic that must be explicitly approved by a human
// before it is ever signed. Nothing in the system signs one of these on the
// user's behalf.
type PendingBridgeTransaction struct {
	ID          string          `json:"id"`
	ChainID     int64           `json:"chain_id"`
	Kind        StepKind        `json:"kind"`
	NotionalUSD decimal.Decimal `json:"notional_usd"`
	To          string          `json:"to"`
	Data        string          `json:"data"`
	Value       *big.Int        `json:"value"`
	Description string          `json:"description"`
	Status      BridgeTxStatus  `json:"status"`
	TxHash      string          `json:"tx_hash,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ReviewedAt  *time.Time      `json:"reviewed_at,omitempty"`
}

// Step converts the queue entry into a single-step plan for the signing
// session.
func (p PendingBridgeTransaction) Step() TransactionStep {
	return TransactionStep{
		Kind:        p.Kind,
		ChainID:     p.ChainID,
		To:          p.To,
		Data:        p.Data,
		Value:       p.Value,
		Description: p.Description,
	}
}
