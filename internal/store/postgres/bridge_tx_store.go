package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defolio/defolio/internal/domain"
)

// BridgeTxStore is the PostgreSQL implementation of domain.BridgeTxStore.
type BridgeTxStore struct {
	pool *pgxpool.Pool
}

// NewBridgeTxStore creates a store backed by the given client.
func NewBridgeTxStore(client *Client) *BridgeTxStore {
	return &BridgeTxStore{pool: client.Pool()}
}

const bridgeTxColumns = `id, chain_id, kind, notional_usd, to_address, data,
	value_wei::text, description, status, COALESCE(tx_hash, ''), created_at, reviewed_at`

func (s *BridgeTxStore) Insert(ctx context.Context, tx domain.PendingBridgeTransaction) error {
	value := "0"
	if tx.Value != nil {
		value = tx.Value.String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bridge_transactions
			(id, chain_id, kind, notional_usd, to_address, data, value_wei, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)`,
		tx.ID, tx.ChainID, string(tx.Kind), tx.NotionalUSD, tx.To, tx.Data,
		value, tx.Description, string(tx.Status), tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bridge tx %s: %w", tx.ID, err)
	}
	return nil
}

func (s *BridgeTxStore) GetByID(ctx context.Context, id string) (domain.PendingBridgeTransaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bridgeTxColumns+` FROM bridge_transactions WHERE id = $1`, id)

	tx, err := scanBridgeTx(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingBridgeTransaction{}, fmt.Errorf("bridge tx %s: %w", id, domain.ErrNotFound)
		}
		return domain.PendingBridgeTransaction{}, fmt.Errorf("get bridge tx %s: %w", id, err)
	}
	return tx, nil
}

func (s *BridgeTxStore) List(ctx context.Context, status domain.BridgeTxStatus, opts domain.ListOpts) ([]domain.PendingBridgeTransaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		// awaiting_review entries lead so pollers see actionable work first.
		rows, err = s.pool.Query(ctx, `
			SELECT `+bridgeTxColumns+` FROM bridge_transactions
			ORDER BY (status = 'awaiting_review') DESC, created_at DESC
			LIMIT $1 OFFSET $2`, limit, opts.Offset)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+bridgeTxColumns+` FROM bridge_transactions
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, string(status), limit, opts.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list bridge txs: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingBridgeTransaction
	for rows.Next() {
		tx, err := scanBridgeTx(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bridge tx: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *BridgeTxStore) UpdateStatus(ctx context.Context, id string, status domain.BridgeTxStatus, txHash string) error {
	var hash any
	if txHash != "" {
		hash = txHash
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bridge_transactions
		SET status = $2, tx_hash = COALESCE($3, tx_hash), reviewed_at = NOW()
		WHERE id = $1`,
		id, string(status), hash,
	)
	if err != nil {
		return fmt.Errorf("update bridge tx %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bridge tx %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanBridgeTx(row pgx.Row) (domain.PendingBridgeTransaction, error) {
	var (
		tx         domain.PendingBridgeTransaction
		kind       string
		valueWei   string
		status     string
		reviewedAt *time.Time
	)
	err := row.Scan(&tx.ID, &tx.ChainID, &kind, &tx.NotionalUSD, &tx.To, &tx.Data,
		&valueWei, &tx.Description, &status, &tx.TxHash, &tx.CreatedAt, &reviewedAt)
	if err != nil {
		return domain.PendingBridgeTransaction{}, err
	}

	tx.Kind = domain.StepKind(kind)
	tx.Status = domain.BridgeTxStatus(status)
	tx.ReviewedAt = reviewedAt
	if v, ok := new(big.Int).SetString(valueWei, 10); ok {
		tx.Value = v
	}
	return tx, nil
}

var _ domain.BridgeTxStore = (*BridgeTxStore)(nil)
