package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defolio/defolio/internal/domain"
)

// PositionStore is the PostgreSQL implementation of domain.PositionStore.
// Legs are stored as a JSONB document; they are written once at open and
// only read back afterwards.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a store backed by the given client.
func NewPositionStore(client *Client) *PositionStore {
	return &PositionStore{pool: client.Pool()}
}

func (s *PositionStore) Create(ctx context.Context, pos domain.ArbPosition) error {
	legs, err := json.Marshal(pos.Legs)
	if err != nil {
		return fmt.Errorf("encode legs for position %s: %w", pos.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO arb_positions
			(id, symbol, direction, notional_usd, legs, status, entry_mark, funding_accrued, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pos.ID, pos.Symbol, string(pos.Direction), pos.NotionalUSD, legs,
		string(pos.Status), pos.EntryMark, pos.FundingAccrued, pos.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("insert position %s: %w", pos.ID, err)
	}
	return nil
}

func (s *PositionStore) Close(ctx context.Context, id string, estimatedPnl string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE arb_positions
		SET status = 'closed', estimated_pnl = $2::numeric, closed_at = NOW()
		WHERE id = $1 AND status = 'open'`,
		id, estimatedPnl,
	)
	if err != nil {
		return fmt.Errorf("close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("open position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *PositionStore) GetOpenBySymbol(ctx context.Context, symbol string) (domain.ArbPosition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, symbol, direction, notional_usd, legs, status, entry_mark,
			funding_accrued, COALESCE(estimated_pnl, 0), opened_at, closed_at
		FROM arb_positions
		WHERE symbol = $1 AND status = 'open'
		ORDER BY opened_at DESC
		LIMIT 1`, symbol)

	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbPosition{}, fmt.Errorf("open position for %s: %w", symbol, domain.ErrNotFound)
		}
		return domain.ArbPosition{}, fmt.Errorf("get open position for %s: %w", symbol, err)
	}
	return pos, nil
}

func (s *PositionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ArbPosition, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, direction, notional_usd, legs, status, entry_mark,
			funding_accrued, COALESCE(estimated_pnl, 0), opened_at, closed_at
		FROM arb_positions
		ORDER BY opened_at DESC
		LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbPosition
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func scanPosition(row pgx.Row) (domain.ArbPosition, error) {
	var (
		pos       domain.ArbPosition
		direction string
		legs      []byte
		status    string
		closedAt  *time.Time
	)
	err := row.Scan(&pos.ID, &pos.Symbol, &direction, &pos.NotionalUSD, &legs,
		&status, &pos.EntryMark, &pos.FundingAccrued, &pos.EstimatedPnl,
		&pos.OpenedAt, &closedAt)
	if err != nil {
		return domain.ArbPosition{}, err
	}

	pos.Direction = domain.ArbDirection(direction)
	pos.Status = domain.PositionStatus(status)
	pos.ClosedAt = closedAt
	if err := json.Unmarshal(legs, &pos.Legs); err != nil {
		return domain.ArbPosition{}, fmt.Errorf("decode legs: %w", err)
	}
	return pos, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
