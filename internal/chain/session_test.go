package chain

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/defolio/defolio/internal/domain"
)

type fakeProvider struct {
	activeChain int64
	switchErr   error
	signErr     error
	txHash      string

	switchCalls int
	signCalls   int
}

func (f *fakeProvider) ActiveChain(context.Context) (int64, error) { return f.activeChain, nil }

func (f *fakeProvider) RequestChainSwitch(_ context.Context, chainID int64) error {
	f.switchCalls++
	if f.switchErr != nil {
		return f.switchErr
	}
	f.activeChain = chainID
	return nil
}

func (f *fakeProvider) SignAndBroadcast(context.Context, TxRequest) (string, error) {
	f.signCalls++
	if f.signErr != nil {
		return "", f.signErr
	}
	return f.txHash, nil
}

// fakeReceipts scripts poll responses in order; the last entry repeats.
type fakeReceipts struct {
	responses []*types.Receipt
	errs      []error
	calls     int
}

func (f *fakeReceipts) TransactionReceipt(context.Context, int64, common.Hash) (*types.Receipt, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.responses[i], err
}

func newTestSession(provider WalletProvider, receipts ReceiptReader, maxAttempts int) *Session {
	return NewSession(provider, receipts, SessionConfig{
		PollInterval: time.Millisecond,
		MaxAttempts:  maxAttempts,
	}, slog.New(slog.DiscardHandler))
}

func step(chainID int64) domain.TransactionStep {
	return domain.TransactionStep{
		Kind: domain.StepSwap, ChainID: chainID,
		To: "0xabc", Data: "0xdeadbeef", Value: big.NewInt(0),
	}
}

func TestSwitchChainSkipsWhenAlreadyThere(t *testing.T) {
	provider := &fakeProvider{activeChain: 137}
	session := newTestSession(provider, &fakeReceipts{responses: []*types.Receipt{nil}}, 3)

	require.NoError(t, session.SwitchChain(context.Background(), 137))
	require.Zero(t, provider.switchCalls)
}

func TestSwitchChainRefusalIsReportedNotFatal(t *testing.T) {
	provider := &fakeProvider{activeChain: 1, switchErr: errors.New("switch unsupported")}
	session := newTestSession(provider, &fakeReceipts{responses: []*types.Receipt{nil}}, 3)

	err := session.SwitchChain(context.Background(), 137)
	require.Error(t, err)

	// A refused switch must not block the signature attempt.
	provider.txHash = "0x01"
	hash, err := session.SignAndSend(context.Background(), step(137))
	require.NoError(t, err)
	require.Equal(t, "0x01", hash)
}

func TestSignAndSendClassifiesRejection(t *testing.T) {
	provider := &fakeProvider{signErr: &ProviderError{Code: 4001, Message: "User rejected the request."}}
	session := newTestSession(provider, &fakeReceipts{responses: []*types.Receipt{nil}}, 3)

	_, err := session.SignAndSend(context.Background(), step(1))

	var rejected *domain.UserRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, StateRejected, session.State())
}

func TestSignAndSendFailurePassesThrough(t *testing.T) {
	provider := &fakeProvider{signErr: &ProviderError{Code: -32000, Message: "insufficient funds"}}
	session := newTestSession(provider, &fakeReceipts{responses: []*types.Receipt{nil}}, 3)

	_, err := session.SignAndSend(context.Background(), step(1))
	require.Error(t, err)

	var rejected *domain.UserRejectedError
	require.False(t, errors.As(err, &rejected))
	require.Equal(t, StateFailed, session.State())
}

func TestWaitForReceiptConfirms(t *testing.T) {
	receipts := &fakeReceipts{responses: []*types.Receipt{
		nil,
		nil,
		{Status: types.ReceiptStatusSuccessful},
	}}
	session := newTestSession(&fakeProvider{}, receipts, 10)

	state, err := session.WaitForReceipt(context.Background(), 1, "0xaa")
	require.NoError(t, err)
	require.Equal(t, domain.StepStateConfirmed, state)
	require.Equal(t, StateConfirmed, session.State())
	require.Equal(t, 3, receipts.calls)
}

func TestWaitForReceiptRevertFails(t *testing.T) {
	receipts := &fakeReceipts{responses: []*types.Receipt{
		{Status: types.ReceiptStatusFailed},
	}}
	session := newTestSession(&fakeProvider{}, receipts, 10)

	state, err := session.WaitForReceipt(context.Background(), 137, "0xbb")
	require.Equal(t, domain.StepStateFailed, state)

	var failed *domain.ChainExecutionFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, int64(137), failed.ChainID)
	require.Equal(t, "0xbb", failed.TxHash)
}

func TestWaitForReceiptExhaustionIsAmbiguous(t *testing.T) {
	receipts := &fakeReceipts{responses: []*types.Receipt{nil}}
	session := newTestSession(&fakeProvider{}, receipts, 5)

	state, err := session.WaitForReceipt(context.Background(), 1, "0xcc")
	require.Equal(t, domain.StepStateTimedOut, state)

	var ambiguous *domain.AmbiguousOutcomeError
	require.ErrorAs(t, err, &ambiguous)
	require.Equal(t, "0xcc", ambiguous.TxHash)
	require.Equal(t, 5, ambiguous.Attempts)
	require.Equal(t, 5, receipts.calls)
}

func TestWaitForReceiptSurvivesPollErrors(t *testing.T) {
	// A transient RPC error on one attempt must not abort the poll.
	receipts := &fakeReceipts{
		responses: []*types.Receipt{nil, nil, {Status: types.ReceiptStatusSuccessful}},
		errs:      []error{errors.New("rpc hiccup"), nil, nil},
	}
	session := newTestSession(&fakeProvider{}, receipts, 10)

	state, err := session.WaitForReceipt(context.Background(), 1, "0xdd")
	require.NoError(t, err)
	require.Equal(t, domain.StepStateConfirmed, state)
}
