package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/defolio/defolio/internal/domain"
	"github.com/defolio/defolio/internal/notify"
	"github.com/defolio/defolio/internal/orchestrator"
)

// Archiver persists finished plan executions to long-term storage.
type Archiver interface {
	ArchiveExecution(ctx context.Context, exec *domain.PlanExecution) error
}

// PlanService runs transaction plans through the orchestrator and handles the
// aftermath: alerting on outcomes that need a human, auditing, and archiving
// the execution record.
type PlanService struct {
	orch     *orchestrator.Orchestrator
	audit    domain.AuditStore
	notifier notify.Notifier
	archiver Archiver
	logger   *slog.Logger
}

// NewPlanService creates a PlanService. audit and archiver may be nil.
func NewPlanService(orch *orchestrator.Orchestrator, audit domain.AuditStore, notifier notify.Notifier, archiver Archiver, logger *slog.Logger) *PlanService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &PlanService{
		orch:     orch,
		audit:    audit,
		notifier: notifier,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "plan_service")),
	}
}

// Execute runs the plan and returns the execution record alongside the
// orchestrator's error, if any. The record is always archived, complete or
// not, so aborted runs stay reconstructable.
func (s *PlanService) Execute(ctx context.Context, steps []domain.TransactionStep) (*domain.PlanExecution, error) {
	exec, err := s.orch.Execute(ctx, steps)

	if err != nil {
		var ambiguous *domain.AmbiguousOutcomeError
		var failed *domain.ChainExecutionFailedError
		switch {
		case errors.As(err, &ambiguous):
			// The transaction may still land; nothing must resend it.
			_ = s.notifier.Notify(ctx, notify.SeverityCritical, "Ambiguous transaction outcome",
				fmt.Sprintf("tx %s on chain %d is unconfirmed after %d polls; check it manually before any retry",
					ambiguous.TxHash, ambiguous.ChainID, ambiguous.Attempts))
		case errors.As(err, &failed):
			_ = s.notifier.Notify(ctx, notify.SeverityWarning, "Transaction reverted",
				fmt.Sprintf("tx %s on chain %d reverted; plan %s aborted", failed.TxHash, failed.ChainID, exec.ID))
		}
	}

	s.auditLog(ctx, "plan_executed", map[string]any{
		"execution_id": exec.ID,
		"steps":        len(exec.Steps),
		"completed":    exec.Completed(),
	})

	if s.archiver != nil {
		if aerr := s.archiver.ArchiveExecution(ctx, exec); aerr != nil {
			s.logger.WarnContext(ctx, "execution archive failed",
				slog.String("execution_id", exec.ID), slog.String("error", aerr.Error()))
		}
	}

	return exec, err
}

func (s *PlanService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event), slog.String("error", err.Error()))
	}
}
