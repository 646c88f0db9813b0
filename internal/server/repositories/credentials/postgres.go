// Package credentials provides the PostgreSQL-backed repository for
// credential records.
package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/server/models"
)

// PostgresRepository implements credential storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const credentialColumns = `id, user_id, type, issuer, issue_date, expiry_date,
		ciphertext, nonce, auth_tag, digest, ledger_tx_id, block_number, created_at, metadata`

// Create inserts a new credential row. Rows are immutable after creation
// except for metadata and the soft-delete flag.
func (r *PostgresRepository) Create(ctx context.Context, cred *models.Credential) error {
	meta, err := json.Marshal(cred.Metadata)
	if err != nil {
		return fmt.Errorf("metadata marshal error: %w", err)
	}

	query := `
		INSERT INTO credentials (id, user_id, type, issuer, issue_date, expiry_date,
			ciphertext, nonce, auth_tag, digest, ledger_tx_id, block_number, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		cred.ID, cred.UserID, cred.Type.String(), cred.Issuer, cred.IssueDate, cred.ExpiryDate,
		cred.Ciphertext, cred.Nonce, cred.AuthTag, cred.Digest, cred.LedgerTxID, cred.BlockNumber, meta,
	).Scan(&cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns a non-deleted credential regardless of owner. Used on the
// token-gated access path, where the accessor is not the owner.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1 AND NOT deleted`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDAndUser returns a non-deleted credential owned by userID. A row
// owned by someone else is reported as common.ErrorNotFound, deliberately
// indistinguishable from an absent row.
func (r *PostgresRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1 AND user_id = $2 AND NOT deleted`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, userID))
}

// ListByUser returns all non-deleted credentials owned by userID, newest
// first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = $1 AND NOT deleted ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Credential
	for rows.Next() {
		cred, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// MarkDeleted soft-deletes an owned credential. Returns common.ErrorNotFound
// when the row is absent, already deleted, or owned by someone else.
func (r *PostgresRepository) MarkDeleted(ctx context.Context, id, userID string) error {
	query := `UPDATE credentials SET deleted = true WHERE id = $1 AND user_id = $2 AND NOT deleted`

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Credential, error) {
	cred, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return cred, nil
}

func (r *PostgresRepository) scanRow(row rowScanner) (*models.Credential, error) {
	var (
		cred     models.Credential
		credType string
		meta     []byte
	)
	err := row.Scan(
		&cred.ID, &cred.UserID, &credType, &cred.Issuer, &cred.IssueDate, &cred.ExpiryDate,
		&cred.Ciphertext, &cred.Nonce, &cred.AuthTag, &cred.Digest,
		&cred.LedgerTxID, &cred.BlockNumber, &cred.CreatedAt, &meta,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	cred.Type, err = models.ParseCredentialType(credType)
	if err != nil {
		return nil, fmt.Errorf("corrupt credential row %s: %w", cred.ID, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &cred.Metadata); err != nil {
			return nil, fmt.Errorf("metadata unmarshal error: %w", err)
		}
	}
	return &cred, nil
}
