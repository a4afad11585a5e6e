package domain

import (
	"math/big"
	"time"
)

// StepKind identifies the on-chain operation a plan step performs.
type StepKind string

const (
	StepApprove StepKind = "approve"
	StepSwap    StepKind = "swap"
	StepBridge  StepKind = "bridge"
	StepSupply  StepKind = "supply"
)

// TransactionStep is one ordered element of a plan produced by an external
// planner (bridge/DEX aggregator or strategy logic). Steps are immutable once
// a plan is issued; execution appends outcomes, never mutates a step.
type TransactionStep struct {
	Kind        StepKind `json:"kind"`
	ChainID     int64    `json:"chain_id"`
	To          string   `json:"to"`    // 0x-prefixed address
	Data        string   `json:"data"`  // 0x-prefixed calldata
	Value       *big.Int `json:"value"` // wei, nil means zero
	Description string   `json:"description"`
	EstGasUSD   float64  `json:"est_gas_usd"`
}

// StepState is the lifecycle state of one step's execution. The four terminal
// states (confirmed, rejected, failed, timed_out) are final and never
// revisited.
type StepState string

const (
	StepStatePending   StepState = "pending"
	StepStateBroadcast StepState = "broadcast"
	StepStateConfirmed StepState = "confirmed"
	StepStateRejected  StepState = "rejected"
	StepStateFailed    StepState = "failed"
	StepStateTimedOut  StepState = "timed_out"
)

// Terminal reports whether the state is final.
func (s StepState) Terminal() bool {
	switch s {
	case StepStateConfirmed, StepStateRejected, StepStateFailed, StepStateTimedOut:
		return true
	}
	return false
}

// StepOutcome records what happened to one step. TxHash stays empty until the
// step is broadcast; Error stays empty unless the step ended badly.
type StepOutcome struct {
	Index      int       `json:"index"`
	State      StepState `json:"state"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// PlanExecution is the full record of driving one plan: the immutable steps
// and one outcome slot per step. Callers that want to resume after a restart
// must persist this themselves; the orchestrator carries no replay state.
type PlanExecution struct {
	ID         string            `json:"id"`
	Steps      []TransactionStep `json:"steps"`
	Outcomes   []StepOutcome     `json:"outcomes"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
}

// Completed reports whether every step reached confirmed.
func (p *PlanExecution) Completed() bool {
	for _, o := range p.Outcomes {
		if o.State != StepStateConfirmed {
			return false
		}
	}
	return len(p.Outcomes) > 0
}
