package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// BridgeTxStore persists confirmation-queue entries. The store is the durable
// owner of a PendingBridgeTransaction until it reaches a terminal status.
type BridgeTxStore interface {
	Insert(ctx context.Context, tx PendingBridgeTransaction) error
	GetByID(ctx context.Context, id string) (PendingBridgeTransaction, error)
	// List returns entries filtered by status; an empty status returns all,
	// awaiting_review first, newest first within a status.
	List(ctx context.Context, status BridgeTxStatus, opts ListOpts) ([]PendingBridgeTransaction, error)
	// UpdateStatus transitions an entry and records the broadcast hash when
	// present. It returns ErrNotFound for unknown IDs.
	UpdateStatus(ctx context.Context, id string, status BridgeTxStatus, txHash string) error
}

// PositionStore persists hedged arbitrage positions.
type PositionStore interface {
	Create(ctx context.Context, pos ArbPosition) error
	Close(ctx context.Context, id string, estimatedPnl string) error
	GetOpenBySymbol(ctx context.Context, symbol string) (ArbPosition, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]ArbPosition, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Every position open/close and
// every queue transition lands here so partial failures stay reconstructable.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// RateCache caches the latest funding-rate observation per instrument so
// read-only dashboards keep working when the exchange is briefly unreachable.
type RateCache interface {
	SetRate(ctx context.Context, instID string, rate string, ts time.Time) error
	GetRate(ctx context.Context, instID string) (string, time.Time, error)
}

// LockManager provides distributed locks. The arbitrage service holds a
// per-symbol lock across openPosition so two concurrent opens cannot race
// the same hedge.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads a named object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
