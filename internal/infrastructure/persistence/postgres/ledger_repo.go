// Package postgres implements the PostgreSQL persistence layer for the
// progression engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// Append-only. Every method honors a querier carried in the context so the
// award transaction's reads and writes stay inside the transaction.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements progression.LedgerRepository for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// Append writes a new ledger entry.
func (r *LedgerRepository) Append(ctx context.Context, tx *progression.XPTransaction) error {
	query := `
		INSERT INTO xp_transactions (
			id, user_id, kind, amount, source_id, source_kind, source_title,
			multipliers, metadata, validated, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	multipliersJSON, err := json.Marshal(tx.AppliedMultipliers)
	if err != nil {
		return fmt.Errorf("failed to marshal multipliers: %w", err)
	}
	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	q := QuerierFrom(ctx, r.conn)
	_, err = q.Exec(ctx, query,
		tx.ID,
		tx.UserID.String(),
		string(tx.Kind),
		tx.Amount,
		tx.Source.ID,
		string(tx.Source.Kind),
		tx.Source.Title,
		multipliersJSON,
		metadataJSON,
		tx.Validated,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// GetByID returns one transaction.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*progression.XPTransaction, error) {
	query := `
		SELECT id, user_id, kind, amount, source_id, source_kind, source_title,
			   multipliers, metadata, validated, created_at
		FROM xp_transactions
		WHERE id = $1
	`

	q := QuerierFrom(ctx, r.conn)
	tx, err := r.scanTransaction(q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// ListByUser returns the user's transactions, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID shared.UserID, p shared.Pagination) ([]*progression.XPTransaction, error) {
	query := `
		SELECT id, user_id, kind, amount, source_id, source_kind, source_title,
			   multipliers, metadata, validated, created_at
		FROM xp_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, userID.String(), p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*progression.XPTransaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// SumValidatedSince sums validated amounts with created_at >= since. The
// (user_id, created_at) index bounds the scan to the window.
func (r *LedgerRepository) SumValidatedSince(ctx context.Context, userID shared.UserID, since time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM xp_transactions
		WHERE user_id = $1 AND validated = TRUE AND created_at >= $2
	`

	q := QuerierFrom(ctx, r.conn)
	var sum int
	if err := q.QueryRow(ctx, query, userID.String(), since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum window: %w", err)
	}
	return sum, nil
}

// SumValidated sums all validated amounts for the user.
func (r *LedgerRepository) SumValidated(ctx context.Context, userID shared.UserID) (int, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM xp_transactions
		WHERE user_id = $1 AND validated = TRUE
	`

	q := QuerierFrom(ctx, r.conn)
	var sum int
	if err := q.QueryRow(ctx, query, userID.String()).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return sum, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTransaction scans one ledger row.
func (r *LedgerRepository) scanTransaction(row rowScanner) (*progression.XPTransaction, error) {
	var (
		tx              progression.XPTransaction
		userID          string
		kind            string
		sourceKind      string
		multipliersJSON []byte
		metadataJSON    []byte
	)

	err := row.Scan(
		&tx.ID,
		&userID,
		&kind,
		&tx.Amount,
		&tx.Source.ID,
		&sourceKind,
		&tx.Source.Title,
		&multipliersJSON,
		&metadataJSON,
		&tx.Validated,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.UserID = shared.UserID(userID)
	tx.Kind = progression.TransactionKind(kind)
	tx.Source.Kind = progression.SourceKind(sourceKind)

	if len(multipliersJSON) > 0 {
		if err := json.Unmarshal(multipliersJSON, &tx.AppliedMultipliers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal multipliers: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &tx, nil
}
