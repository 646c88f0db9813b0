// Package grants provides the PostgreSQL-backed repository for access
// grants.
package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/server/models"
)

// PostgresRepository implements grant storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const grantColumns = `id, credential_id, granted_by, granted_to, token, purpose,
		issued_at, expires_at, revoked, revoked_at`

// Create inserts a new grant. The token column carries a UNIQUE constraint;
// a collision surfaces as a wrapped db error and is never retried here.
func (r *PostgresRepository) Create(ctx context.Context, grant *models.AccessGrant) error {
	query := `
		INSERT INTO access_grants (id, credential_id, granted_by, granted_to, token, purpose, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING issued_at
	`
	err := r.db.QueryRowContext(ctx, query,
		grant.ID, grant.CredentialID, grant.GrantedBy, grant.GrantedTo,
		grant.Token, grant.Purpose, grant.ExpiresAt,
	).Scan(&grant.IssuedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns a grant by primary key or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.AccessGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM access_grants WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByToken returns a grant by bearer token or common.ErrorNotFound.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.AccessGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM access_grants WHERE token = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

// ListByCredential returns all grants for a credential, newest first.
func (r *PostgresRepository) ListByCredential(ctx context.Context, credentialID string) ([]*models.AccessGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM access_grants WHERE credential_id = $1 ORDER BY issued_at DESC`

	rows, err := r.db.QueryContext(ctx, query, credentialID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessGrant
	for rows.Next() {
		var g models.AccessGrant
		if err := rows.Scan(
			&g.ID, &g.CredentialID, &g.GrantedBy, &g.GrantedTo, &g.Token, &g.Purpose,
			&g.IssuedAt, &g.ExpiresAt, &g.Revoked, &g.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Revoke marks a grant revoked. Returns false when the grant was already
// revoked (idempotent no-op) and common.ErrorNotFound when it is absent.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) (bool, error) {
	query := `UPDATE access_grants SET revoked = true, revoked_at = now() WHERE id = $1 AND NOT revoked`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// No row changed: either the grant does not exist or it is already
	// revoked. Distinguish so revocation stays idempotent.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM access_grants WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return false, common.ErrorNotFound
	}
	return false, nil
}

// RevokeAllForCredential revokes every non-revoked grant for a credential
// and returns the number revoked.
func (r *PostgresRepository) RevokeAllForCredential(ctx context.Context, credentialID string) (int64, error) {
	query := `UPDATE access_grants SET revoked = true, revoked_at = now() WHERE credential_id = $1 AND NOT revoked`

	res, err := r.db.ExecContext(ctx, query, credentialID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.AccessGrant, error) {
	var g models.AccessGrant
	err := row.Scan(
		&g.ID, &g.CredentialID, &g.GrantedBy, &g.GrantedTo, &g.Token, &g.Purpose,
		&g.IssuedAt, &g.ExpiresAt, &g.Revoked, &g.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &g, nil
}
