package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/defolio/defolio/internal/domain"
)

// SessionState is the lifecycle of one signing invocation.
type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateAwaitingChainSwitch SessionState = "awaiting_chain_switch"
	StateAwaitingSignature   SessionState = "awaiting_signature"
	StateBroadcast           SessionState = "broadcast"
	StatePolling             SessionState = "polling"
	StateConfirmed           SessionState = "confirmed"
	StateRejected            SessionState = "rejected"
	StateFailed              SessionState = "failed"
	StateTimedOut            SessionState = "timed_out"
)

// SessionConfig bounds the receipt poll: a fixed interval and a hard attempt
// cap make it a bounded wait, never an indefinite block.
type SessionConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// Defaults fills zero fields with the standard polling budget.
func (c SessionConfig) withDefaults() SessionConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 40
	}
	return c
}

// Session drives a wallet provider through chain-switch, signing, and
// receipt confirmation for single transactions. A Session holds no funds and
// no keys; it can only ask the provider to act.
type Session struct {
	provider WalletProvider
	receipts ReceiptReader
	cfg      SessionConfig
	logger   *slog.Logger
	state    SessionState
}

// NewSession creates a Session over the given provider and receipt reader.
func NewSession(provider WalletProvider, receipts ReceiptReader, cfg SessionConfig, logger *slog.Logger) *Session {
	return &Session{
		provider: provider,
		receipts: receipts,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(slog.String("component", "signing_session")),
		state:    StateIdle,
	}
}

// State returns the state the session last reached.
func (s *Session) State() SessionState { return s.state }

func (s *Session) setState(ctx context.Context, state SessionState) {
	s.state = state
	s.logger.DebugContext(ctx, "session state", slog.String("state", string(state)))
}

// SwitchChain moves the provider to the target chain when it is elsewhere.
// This is deliberately best-effort, not a hard precondition: some providers
// refuse programmatic switches but auto-switch on send, so a refusal is
// reported and execution continues to the signature attempt anyway.
func (s *Session) SwitchChain(ctx context.Context, targetChainID int64) error {
	s.setState(ctx, StateAwaitingChainSwitch)

	active, err := s.provider.ActiveChain(ctx)
	if err == nil && active == targetChainID {
		return nil
	}

	if err := s.provider.RequestChainSwitch(ctx, targetChainID); err != nil {
		s.logger.WarnContext(ctx, "chain switch refused, continuing",
			slog.Int64("target_chain", targetChainID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// SignAndSend asks the provider to sign and broadcast the step's payload.
// Provider errors are classified: an explicit user denial comes back as
// domain.UserRejectedError, everything else (network, malformed payload,
// insufficient funds) propagates as-is.
func (s *Session) SignAndSend(ctx context.Context, step domain.TransactionStep) (string, error) {
	s.setState(ctx, StateAwaitingSignature)

	txHash, err := s.provider.SignAndBroadcast(ctx, TxRequest{
		ChainID: step.ChainID,
		To:      step.To,
		Data:    step.Data,
		Value:   step.Value,
	})
	if err != nil {
		classified := ClassifySigningError(err)
		var rejected *domain.UserRejectedError
		if errors.As(classified, &rejected) {
			s.setState(ctx, StateRejected)
		} else {
			s.setState(ctx, StateFailed)
		}
		return "", classified
	}

	s.setState(ctx, StateBroadcast)
	s.logger.InfoContext(ctx, "transaction broadcast",
		slog.Int64("chain_id", step.ChainID),
		slog.String("tx_hash", txHash),
		slog.String("kind", string(step.Kind)),
	)
	return txHash, nil
}

// WaitForReceipt polls for the transaction receipt at a fixed interval until
// it appears or the attempt budget runs out.
//
// A timed-out poll is a failure of observation, not of the transaction: the
// funds may still have moved. It is reported as StepStateTimedOut together
// with a domain.AmbiguousOutcomeError carrying the hash, and is never
// retried here.
func (s *Session) WaitForReceipt(ctx context.Context, chainID int64, txHash string) (domain.StepState, error) {
	s.setState(ctx, StatePolling)
	hash := common.HexToHash(txHash)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		receipt, err := s.receipts.TransactionReceipt(ctx, chainID, hash)
		if err != nil {
			s.logger.WarnContext(ctx, "receipt poll failed",
				slog.Int("attempt", attempt),
				slog.String("tx_hash", txHash),
				slog.String("error", err.Error()),
			)
		} else if receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				s.setState(ctx, StateConfirmed)
				return domain.StepStateConfirmed, nil
			}
			s.setState(ctx, StateFailed)
			return domain.StepStateFailed, &domain.ChainExecutionFailedError{ChainID: chainID, TxHash: txHash}
		}

		if attempt == s.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			s.setState(ctx, StateTimedOut)
			return domain.StepStateTimedOut, &domain.AmbiguousOutcomeError{
				ChainID: chainID, TxHash: txHash, Attempts: attempt, Interval: s.cfg.PollInterval,
			}
		case <-time.After(s.cfg.PollInterval):
		}
	}

	s.setState(ctx, StateTimedOut)
	return domain.StepStateTimedOut, &domain.AmbiguousOutcomeError{
		ChainID: chainID, TxHash: txHash, Attempts: s.cfg.MaxAttempts, Interval: s.cfg.PollInterval,
	}
}
