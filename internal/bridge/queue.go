// Package bridge implements the confirmation queue that decouples proposal
// of a transaction from its execution. Autonomous strategy logic may insert
// entries; only an explicit user action may move one out of awaiting_review,
// and nothing here ever signs on the user's behalf.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/defolio/defolio/internal/domain"
)

// Signer is the slice of the chain signing session Confirm needs.
type Signer interface {
	SwitchChain(ctx context.Context, targetChainID int64) error
	SignAndSend(ctx context.Context, step domain.TransactionStep) (string, error)
}

// Queue is the durable confirmation mailbox. State lives in the store; the
// Queue itself holds no entries, so any number of pollers can share one.
type Queue struct {
	store  domain.BridgeTxStore
	audit  domain.AuditStore
	signer Signer
	logger *slog.Logger
}

// NewQueue creates a Queue over the given store and signing session. audit
// may be nil.
func NewQueue(store domain.BridgeTxStore, audit domain.AuditStore, signer Signer, logger *slog.Logger) *Queue {
	return &Queue{
		store:  store,
		audit:  audit,
		signer: signer,
		logger: logger.With(slog.String("component", "bridge_queue")),
	}
}

// Propose inserts a new entry in awaiting_review. It is called by the
// autonomous proposer; the entry then waits for a human.
func (q *Queue) Propose(ctx context.Context, tx domain.PendingBridgeTransaction) (domain.PendingBridgeTransaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.Status = domain.BridgeStatusAwaitingReview
	tx.CreatedAt = time.Now().UTC()

	if err := q.store.Insert(ctx, tx); err != nil {
		return domain.PendingBridgeTransaction{}, fmt.Errorf("bridge: propose: %w", err)
	}

	q.auditLog(ctx, "bridge_tx_proposed", map[string]any{
		"id": tx.ID, "kind": string(tx.Kind), "chain_id": tx.ChainID,
		"notional_usd": tx.NotionalUSD.String(),
	})
	return tx, nil
}

// List returns queue entries; pollers call this to learn about new
// proposals (at-least-once delivery — an entry stays listed until acted on).
func (q *Queue) List(ctx context.Context, status domain.BridgeTxStatus, opts domain.ListOpts) ([]domain.PendingBridgeTransaction, error) {
	return q.store.List(ctx, status, opts)
}

// Confirm executes an awaiting entry through the signing session after an
// explicit user approval.
//
// A user rejection at the wallet marks the entry rejected (terminal, not
// re-queued) and returns it with a nil error — the cancellation is benign.
// Any other signing failure leaves the entry in awaiting_review so the user
// can retry, and returns the error. Success records the broadcast hash.
func (q *Queue) Confirm(ctx context.Context, id string) (domain.PendingBridgeTransaction, error) {
	tx, err := q.store.GetByID(ctx, id)
	if err != nil {
		return domain.PendingBridgeTransaction{}, fmt.Errorf("bridge: confirm %s: %w", id, err)
	}
	if tx.Status != domain.BridgeStatusAwaitingReview {
		return tx, fmt.Errorf("bridge: confirm %s: status %s: %w", id, tx.Status, domain.ErrAlreadyTerminal)
	}

	step := tx.Step()
	_ = q.signer.SwitchChain(ctx, step.ChainID)

	txHash, err := q.signer.SignAndSend(ctx, step)
	if err != nil {
		var rejected *domain.UserRejectedError
		if errors.As(err, &rejected) {
			if uerr := q.store.UpdateStatus(ctx, id, domain.BridgeStatusRejected, ""); uerr != nil {
				return tx, fmt.Errorf("bridge: mark %s rejected: %w", id, uerr)
			}
			tx.Status = domain.BridgeStatusRejected
			q.auditLog(ctx, "bridge_tx_rejected_at_wallet", map[string]any{"id": id})
			return tx, nil
		}
		return tx, fmt.Errorf("bridge: confirm %s: %w", id, err)
	}

	if err := q.store.UpdateStatus(ctx, id, domain.BridgeStatusBroadcasted, txHash); err != nil {
		// The transaction is out; losing the status update must not hide
		// the hash from the caller.
		q.logger.ErrorContext(ctx, "broadcasted but status update failed",
			slog.String("id", id), slog.String("tx_hash", txHash), slog.String("error", err.Error()))
	}
	tx.Status = domain.BridgeStatusBroadcasted
	tx.TxHash = txHash

	q.auditLog(ctx, "bridge_tx_broadcasted", map[string]any{"id": id, "tx_hash": txHash})
	return tx, nil
}

// Reject terminates an awaiting entry without ever touching the signing
// session. Terminal entries return ErrAlreadyTerminal.
func (q *Queue) Reject(ctx context.Context, id string) (domain.PendingBridgeTransaction, error) {
	tx, err := q.store.GetByID(ctx, id)
	if err != nil {
		return domain.PendingBridgeTransaction{}, fmt.Errorf("bridge: reject %s: %w", id, err)
	}
	if tx.Status != domain.BridgeStatusAwaitingReview {
		return tx, fmt.Errorf("bridge: reject %s: status %s: %w", id, tx.Status, domain.ErrAlreadyTerminal)
	}

	if err := q.store.UpdateStatus(ctx, id, domain.BridgeStatusRejected, ""); err != nil {
		return tx, fmt.Errorf("bridge: reject %s: %w", id, err)
	}
	tx.Status = domain.BridgeStatusRejected

	q.auditLog(ctx, "bridge_tx_rejected", map[string]any{"id": id})
	return tx, nil
}

func (q *Queue) auditLog(ctx context.Context, event string, detail map[string]any) {
	if q.audit == nil {
		return
	}
	if err := q.audit.Log(ctx, event, detail); err != nil {
		q.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event), slog.String("error", err.Error()))
	}
}
