// Package orchestrator drives an ordered transaction plan through a signing
// session, one step at a time, recording a per-step outcome. Steps are
// causally dependent (an approval must land before the swap that spends it),
// so nothing here ever runs in parallel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/defolio/defolio/internal/domain"
)

// Session is the slice of the chain signing session the orchestrator needs.
type Session interface {
	SwitchChain(ctx context.Context, targetChainID int64) error
	SignAndSend(ctx context.Context, step domain.TransactionStep) (string, error)
	WaitForReceipt(ctx context.Context, chainID int64, txHash string) (domain.StepState, error)
}

// ProgressFunc observes each outcome change while a plan executes. It runs
// synchronously; keep it cheap.
type ProgressFunc func(stepIndex, totalSteps int, outcome domain.StepOutcome)

// Orchestrator executes plans built by an external planner. It owns no
// replay state: resuming a partially executed plan after a restart is the
// caller's problem, using the persisted outcome list.
type Orchestrator struct {
	session    Session
	logger     *slog.Logger
	onProgress ProgressFunc
}

// New creates an Orchestrator. onProgress may be nil.
func New(session Session, onProgress ProgressFunc, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		session:    session,
		logger:     logger.With(slog.String("component", "orchestrator")),
		onProgress: onProgress,
	}
}

// Execute drives every step of the plan in order. Each step gets exactly one
// signing attempt (at-most-once execution); terminal outcomes are final.
//
// Abort rules, in order of how the run ends:
//   - user rejection: remaining steps stay pending, the provider is never
//     invoked for them, and Execute returns the partial execution with a nil
//     error — a rejection is a cancellation, not a failure;
//   - revert or provider failure: remaining steps stay pending and the error
//     is returned along with the partial execution;
//   - receipt timeout: same as failure, but the returned error is the
//     AmbiguousOutcomeError — the step is NOT resent, because its true
//     on-chain status is unknown and resending risks a double-spend.
//
// Already-broadcast prior steps always stand: on-chain effects cannot be
// rolled back by this layer.
func (o *Orchestrator) Execute(ctx context.Context, steps []domain.TransactionStep) (*domain.PlanExecution, error) {
	exec := &domain.PlanExecution{
		ID:        uuid.New().String(),
		Steps:     steps,
		Outcomes:  make([]domain.StepOutcome, len(steps)),
		StartedAt: time.Now().UTC(),
	}
	for i := range exec.Outcomes {
		exec.Outcomes[i] = domain.StepOutcome{Index: i, State: domain.StepStatePending}
	}
	defer func() { exec.FinishedAt = time.Now().UTC() }()

	if len(steps) == 0 {
		return exec, errors.New("orchestrator: empty plan")
	}

	var prevChainID int64
	for i, step := range steps {
		outcome := &exec.Outcomes[i]
		outcome.StartedAt = time.Now().UTC()

		o.logger.InfoContext(ctx, "executing step",
			slog.Int("step", i+1),
			slog.Int("total", len(steps)),
			slog.String("kind", string(step.Kind)),
			slog.Int64("chain_id", step.ChainID),
		)

		// Chain switch is needed only when the target moves. Best effort:
		// the session already logs refusals, and some providers switch on
		// send.
		if i == 0 || step.ChainID != prevChainID {
			_ = o.session.SwitchChain(ctx, step.ChainID)
		}
		prevChainID = step.ChainID

		txHash, err := o.session.SignAndSend(ctx, step)
		if err != nil {
			var rejected *domain.UserRejectedError
			if errors.As(err, &rejected) {
				o.finish(outcome, i, len(steps), domain.StepStateRejected, "", rejected.Error())
				o.logger.InfoContext(ctx, "plan cancelled by user", slog.Int("step", i+1))
				return exec, nil
			}
			o.finish(outcome, i, len(steps), domain.StepStateFailed, "", err.Error())
			return exec, fmt.Errorf("orchestrator: step %d (%s): %w", i+1, step.Kind, err)
		}

		outcome.TxHash = txHash
		outcome.State = domain.StepStateBroadcast
		o.progress(i, len(steps), *outcome)

		state, err := o.session.WaitForReceipt(ctx, step.ChainID, txHash)
		if err != nil {
			o.finish(outcome, i, len(steps), state, txHash, err.Error())
			return exec, fmt.Errorf("orchestrator: step %d (%s): %w", i+1, step.Kind, err)
		}

		o.finish(outcome, i, len(steps), state, txHash, "")
	}

	return exec, nil
}

// finish seals a step outcome and notifies the progress hook.
func (o *Orchestrator) finish(outcome *domain.StepOutcome, i, total int, state domain.StepState, txHash, errMsg string) {
	outcome.State = state
	if txHash != "" {
		outcome.TxHash = txHash
	}
	outcome.Error = errMsg
	outcome.FinishedAt = time.Now().UTC()
	o.progress(i, total, *outcome)
}

func (o *Orchestrator) progress(i, total int, outcome domain.StepOutcome) {
	if o.onProgress != nil {
		o.onProgress(i, total, outcome)
	}
}
