package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyTerminal = errors.New("already terminal")
	ErrLockHeld        = errors.New("lock already held")
	ErrNoProvider      = errors.New("no wallet provider connected")
	ErrNotViable       = errors.New("opportunity no longer viable")
)

// AuthError indicates the exchange rejected our credentials or signature.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("exchange auth failed (HTTP %d): %s", e.Status, e.Message)
}

// ExchangeError is a non-zero envelope code returned by the exchange API.
type ExchangeError struct {
	Code    string
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %s: %s", e.Code, e.Message)
}

// TimeoutError indicates a call exceeded its network-level deadline. The true
// outcome of the operation is unknown; a caller that just placed an order
// must reconcile against the exchange before retrying.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// UserRejectedError indicates the signing provider reported an explicit user
// denial. It is a benign cancellation, not a failure.
type UserRejectedError struct {
	Code    int
	Message string
}

func (e *UserRejectedError) Error() string {
	return fmt.Sprintf("user rejected signing request (code %d): %s", e.Code, e.Message)
}

// ChainExecutionFailedError indicates a broadcast transaction reverted
// on-chain. The hash is preserved so the user can inspect the revert on a
// block explorer.
type ChainExecutionFailedError struct {
	ChainID int64
	TxHash  string
}

func (e *ChainExecutionFailedError) Error() string {
	return fmt.Sprintf("transaction %s reverted on chain %d", e.TxHash, e.ChainID)
}

// AmbiguousOutcomeError indicates a receipt poll exhausted its attempt budget
// without observing the transaction. The transaction may still land; funds
// must be assumed to be in motion until a human verifies the hash.
type AmbiguousOutcomeError struct {
	ChainID  int64
	TxHash   string
	Attempts int
	Interval time.Duration
}

func (e *AmbiguousOutcomeError) Error() string {
	return fmt.Sprintf("no receipt for %s on chain %d after %d polls at %s; on-chain state unknown",
		e.TxHash, e.ChainID, e.Attempts, e.Interval)
}

// HedgeImbalanceError is returned when the second leg of a hedged position
// failed AND the compensating close of the first leg also failed, leaving
// exactly one leg live. This is the one state the engine cannot recover from
// on its own; it carries everything an operator needs to reconcile manually.
type HedgeImbalanceError struct {
	Symbol          string
	OpenLegOrderID  string
	OpenLegSide     string
	LegErr          error
	CompensationErr error
}

func (e *HedgeImbalanceError) Error() string {
	return fmt.Sprintf(
		"hedge imbalance on %s: leg order %s (%s) is live, second leg failed (%v), compensating close failed (%v); manual reconciliation required",
		e.Symbol, e.OpenLegOrderID, e.OpenLegSide, e.LegErr, e.CompensationErr,
	)
}
