// Package userkeys provides the PostgreSQL-backed repository for wrapped
// per-user encryption keys.
package userkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/server/models"
)

// PostgresRepository implements key storage over a dbx.DBTX. Only wrapped
// key material ever reaches this layer.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wrapped key for a user who has none. A user who already
// holds a key gets common.ErrorKeyAlreadyExists; callers must delete first.
func (r *PostgresRepository) Create(ctx context.Context, key *models.UserKey) error {
	query := `
		INSERT INTO user_keys (user_id, wrapped, nonce, tag)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, key.UserID, key.Wrapped, key.Nonce, key.Tag)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorKeyAlreadyExists
	}
	return nil
}

// GetByUser returns the user's wrapped key or common.ErrorKeyNotFound.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (*models.UserKey, error) {
	query := `SELECT user_id, wrapped, nonce, tag, created_at FROM user_keys WHERE user_id = $1`

	key := &models.UserKey{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&key.UserID, &key.Wrapped, &key.Nonce, &key.Tag, &key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorKeyNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

// Delete destroys the user's key row. Deleting an absent key yields
// common.ErrorKeyNotFound. There is no undo.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_keys WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorKeyNotFound
	}
	return nil
}
