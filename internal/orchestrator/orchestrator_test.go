package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/defolio/defolio/internal/domain"
)

// stepScript describes how the fake session treats one SignAndSend call.
type stepScript struct {
	signErr      error
	receiptState domain.StepState
	receiptErr   error
}

type fakeSession struct {
	scripts []stepScript

	switchCalls []int64
	signCalls   int
	waitCalls   int
}

func (f *fakeSession) SwitchChain(_ context.Context, chainID int64) error {
	f.switchCalls = append(f.switchCalls, chainID)
	return nil
}

func (f *fakeSession) SignAndSend(_ context.Context, _ domain.TransactionStep) (string, error) {
	i := f.signCalls
	f.signCalls++
	if f.scripts[i].signErr != nil {
		return "", f.scripts[i].signErr
	}
	return "0xhash", nil
}

func (f *fakeSession) WaitForReceipt(_ context.Context, _ int64, _ string) (domain.StepState, error) {
	f.waitCalls++
	script := f.scripts[f.signCalls-1]
	return script.receiptState, script.receiptErr
}

func newTestOrchestrator(session Session) *Orchestrator {
	return New(session, nil, slog.New(slog.DiscardHandler))
}

func steps(chainIDs ...int64) []domain.TransactionStep {
	out := make([]domain.TransactionStep, len(chainIDs))
	for i, id := range chainIDs {
		out[i] = domain.TransactionStep{Kind: domain.StepSwap, ChainID: id, To: "0xabc", Data: "0x"}
	}
	return out
}

func confirmed() stepScript { return stepScript{receiptState: domain.StepStateConfirmed} }

func TestExecuteAllStepsConfirm(t *testing.T) {
	session := &fakeSession{scripts: []stepScript{confirmed(), confirmed(), confirmed()}}
	orch := newTestOrchestrator(session)

	exec, err := orch.Execute(context.Background(), steps(1, 1, 1))
	require.NoError(t, err)
	require.True(t, exec.Completed())
	require.Equal(t, 3, session.signCalls)

	for _, o := range exec.Outcomes {
		require.Equal(t, domain.StepStateConfirmed, o.State)
		require.Equal(t, "0xhash", o.TxHash)
	}
}

func TestRejectionAtStepTwoLeavesRestPending(t *testing.T) {
	session := &fakeSession{scripts: []stepScript{
		confirmed(),
		{signErr: &domain.UserRejectedError{Code: 4001, Message: "user rejected"}},
		confirmed(),
		confirmed(),
	}}
	orch := newTestOrchestrator(session)

	exec, err := orch.Execute(context.Background(), steps(1, 1, 1, 1))
	require.NoError(t, err, "a user rejection is a cancellation, not a failure")

	require.Equal(t, domain.StepStateConfirmed, exec.Outcomes[0].State)
	require.Equal(t, domain.StepStateRejected, exec.Outcomes[1].State)
	require.Equal(t, domain.StepStatePending, exec.Outcomes[2].State)
	require.Equal(t, domain.StepStatePending, exec.Outcomes[3].State)

	// The provider is never invoked for the remaining steps.
	require.Equal(t, 2, session.signCalls)
	require.False(t, exec.Completed())
}

func TestRevertAtStepTwoAbortsWithError(t *testing.T) {
	session := &fakeSession{scripts: []stepScript{
		confirmed(),
		{receiptState: domain.StepStateFailed, receiptErr: &domain.ChainExecutionFailedError{ChainID: 1, TxHash: "0xhash"}},
		confirmed(),
	}}
	orch := newTestOrchestrator(session)

	exec, err := orch.Execute(context.Background(), steps(1, 1, 1))
	require.Error(t, err)

	var failed *domain.ChainExecutionFailedError
	require.ErrorAs(t, err, &failed)

	require.Equal(t, domain.StepStateConfirmed, exec.Outcomes[0].State)
	require.Equal(t, domain.StepStateFailed, exec.Outcomes[1].State)
	require.Equal(t, domain.StepStatePending, exec.Outcomes[2].State)
	require.Equal(t, 2, session.signCalls)
}

func TestTimeoutIsNeverResent(t *testing.T) {
	session := &fakeSession{scripts: []stepScript{
		{receiptState: domain.StepStateTimedOut, receiptErr: &domain.AmbiguousOutcomeError{ChainID: 1, TxHash: "0xhash", Attempts: 40}},
		confirmed(),
	}}
	orch := newTestOrchestrator(session)

	exec, err := orch.Execute(context.Background(), steps(1, 1))

	var ambiguous *domain.AmbiguousOutcomeError
	require.ErrorAs(t, err, &ambiguous)

	require.Equal(t, domain.StepStateTimedOut, exec.Outcomes[0].State)
	require.Equal(t, "0xhash", exec.Outcomes[0].TxHash, "the hash must survive for manual verification")
	require.Equal(t, 1, session.signCalls, "an ambiguous step must not be resent")
	require.Equal(t, domain.StepStatePending, exec.Outcomes[1].State)
}

func TestSwitchChainOnlyWhenChainChanges(t *testing.T) {
	session := &fakeSession{scripts: []stepScript{confirmed(), confirmed(), confirmed(), confirmed()}}
	orch := newTestOrchestrator(session)

	_, err := orch.Execute(context.Background(), steps(1, 1, 137, 137))
	require.NoError(t, err)
	require.Equal(t, []int64{1, 137}, session.switchCalls)
}

func TestSignErrorRecordsFailedOutcome(t *testing.T) {
	session := &fakeSession{scripts: []stepScript{
		{signErr: errors.New("provider connection lost")},
	}}
	orch := newTestOrchestrator(session)

	exec, err := orch.Execute(context.Background(), steps(1))
	require.Error(t, err)
	require.Equal(t, domain.StepStateFailed, exec.Outcomes[0].State)
	require.Contains(t, exec.Outcomes[0].Error, "provider connection lost")
}

func TestEmptyPlanIsAnError(t *testing.T) {
	orch := newTestOrchestrator(&fakeSession{})
	_, err := orch.Execute(context.Background(), nil)
	require.Error(t, err)
}

func TestProgressCallbackObservesOutcomes(t *testing.T) {
	session := &fakeSession{scripts: []stepScript{confirmed(), confirmed()}}

	var states []domain.StepState
	orch := New(session, func(_, _ int, outcome domain.StepOutcome) {
		states = append(states, outcome.State)
	}, slog.New(slog.DiscardHandler))

	_, err := orch.Execute(context.Background(), steps(1, 1))
	require.NoError(t, err)
	// broadcast then confirmed, per step.
	require.Equal(t, []domain.StepState{
		domain.StepStateBroadcast, domain.StepStateConfirmed,
		domain.StepStateBroadcast, domain.StepStateConfirmed,
	}, states)
}
