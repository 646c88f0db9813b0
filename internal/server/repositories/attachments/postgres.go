// Package attachments provides the PostgreSQL-backed repository for
// encrypted evidence attachments.
package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/server/models"
)

// PostgresRepository implements attachment storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an attachment row in the pending state.
func (r *PostgresRepository) Create(ctx context.Context, att *models.Attachment) error {
	query := `
		INSERT INTO attachments (id, credential_id, user_id, file_name, storage_key,
			encrypted_file_key, key_nonce, key_tag, upload_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		att.ID, att.CredentialID, att.UserID, att.FileName, att.StorageKey,
		att.EncryptedFileKey, att.KeyNonce, att.KeyTag, att.UploadStatus,
	).Scan(&att.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByCredential returns the credential's attachment or common.ErrorNotFound.
func (r *PostgresRepository) GetByCredential(ctx context.Context, credentialID string) (*models.Attachment, error) {
	query := `
		SELECT id, credential_id, user_id, file_name, storage_key,
			encrypted_file_key, key_nonce, key_tag, upload_status, created_at
		FROM attachments WHERE credential_id = $1
	`
	att := &models.Attachment{}
	err := r.db.QueryRowContext(ctx, query, credentialID).Scan(
		&att.ID, &att.CredentialID, &att.UserID, &att.FileName, &att.StorageKey,
		&att.EncryptedFileKey, &att.KeyNonce, &att.KeyTag, &att.UploadStatus, &att.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return att, nil
}

// MarkUploaded flips an attachment from pending to uploaded.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attachments SET upload_status = $1 WHERE id = $2`, models.UploadStatusUploaded, id)
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

// DeleteByCredential removes attachment rows as part of the credential
// deletion cascade. Deleting when no attachment exists is not an error.
func (r *PostgresRepository) DeleteByCredential(ctx context.Context, credentialID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE credential_id = $1`, credentialID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
