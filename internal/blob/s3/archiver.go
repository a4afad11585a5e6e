package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/defolio/defolio/internal/domain"
)

// Archiver writes finished plan executions to blob storage so terminal
// outcomes survive database retention and stay auditable.
type Archiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewArchiver creates an Archiver over the given writer.
func NewArchiver(writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveExecution stores one execution record under a date-partitioned key.
func (a *Archiver) ArchiveExecution(ctx context.Context, exec *domain.PlanExecution) error {
	body, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode execution %s: %w", exec.ID, err)
	}

	at := exec.FinishedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	key := fmt.Sprintf("executions/%04d/%02d/%02d/%s.json",
		at.Year(), at.Month(), at.Day(), exec.ID)

	if err := a.writer.Put(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("archive: execution %s: %w", exec.ID, err)
	}

	a.logger.InfoContext(ctx, "execution archived",
		slog.String("execution_id", exec.ID), slog.String("key", key))
	return nil
}
