// Package auditlog provides the PostgreSQL-backed repository for the
// append-only access log.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/server/models"
)

// DefaultPageSize bounds audit queries that do not request an explicit limit.
const DefaultPageSize = 100

// PostgresRepository implements access-log storage over a dbx.DBTX. Rows are
// insert-only; there is no update or delete path.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends one audit entry.
func (r *PostgresRepository) Create(ctx context.Context, entry *models.AccessLogEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("metadata marshal error: %w", err)
	}

	query := `
		INSERT INTO access_log (id, credential_id, accessor_id, action, success, source_addr, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ts
	`
	err = r.db.QueryRowContext(ctx, query,
		entry.ID, entry.CredentialID, entry.AccessorID, entry.Action.String(),
		entry.Success, entry.SourceAddr, entry.UserAgent, meta,
	).Scan(&entry.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByCredential returns audit entries for one credential, newest first,
// narrowed by the filter.
func (r *PostgresRepository) ListByCredential(ctx context.Context, credentialID string, f Filter) ([]*models.AccessLogEntry, error) {
	return r.list(ctx, `credential_id = $1`, []any{credentialID}, f)
}

// ListByCredentials returns audit entries across several credentials, newest
// first. Used for the owner's cross-credential view.
func (r *PostgresRepository) ListByCredentials(ctx context.Context, credentialIDs []string, f Filter) ([]*models.AccessLogEntry, error) {
	if len(credentialIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `credential_id::text = ANY($1)`, []any{credentialIDs}, f)
}

func (r *PostgresRepository) list(ctx context.Context, where string, args []any, f Filter) ([]*models.AccessLogEntry, error) {
	conds := []string{where}

	if f.Action != "" {
		args = append(args, f.Action.String())
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	args = append(args, limit, f.Offset)

	query := fmt.Sprintf(`
		SELECT id, credential_id, accessor_id, action, success, source_addr, user_agent, ts, metadata
		FROM access_log
		WHERE %s
		ORDER BY ts DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessLogEntry
	for rows.Next() {
		var (
			e      models.AccessLogEntry
			action string
			meta   []byte
		)
		if err := rows.Scan(
			&e.ID, &e.CredentialID, &e.AccessorID, &action, &e.Success,
			&e.SourceAddr, &e.UserAgent, &e.Timestamp, &meta,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Action, err = models.ParseAccessAction(action)
		if err != nil {
			return nil, fmt.Errorf("corrupt audit row %s: %w", e.ID, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("metadata unmarshal error: %w", err)
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// StatsByCredential aggregates the credential's audit trail at query time.
// Total/successful counts cover actual data accesses (accessed and
// access-denied rows), not grant bookkeeping events.
func (r *PostgresRepository) StatsByCredential(ctx context.Context, credentialID string) (*models.AccessStats, error) {
	query := `
		SELECT action, success, count(*)
		FROM access_log
		WHERE credential_id = $1
		GROUP BY action, success
	`
	rows, err := r.db.QueryContext(ctx, query, credentialID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	stats := &models.AccessStats{ByAction: make(map[models.AccessAction]int64)}
	for rows.Next() {
		var (
			action  string
			success bool
			count   int64
		)
		if err := rows.Scan(&action, &success, &count); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		a, err := models.ParseAccessAction(action)
		if err != nil {
			return nil, fmt.Errorf("corrupt audit row: %w", err)
		}

		stats.ByAction[a] += count
		switch a {
		case models.ActionAccessed, models.ActionAccessDenied:
			stats.TotalAccesses += count
			if a == models.ActionAccessed && success {
				stats.SuccessfulAccesses += count
			}
		case models.ActionGranted, models.ActionRevoked, models.ActionVerified:
			// bookkeeping events, not data accesses
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stats, nil
}
