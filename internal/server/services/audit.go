// Package services contains the business logic of the credential custody
// subsystem: the credential store, the access grant manager, the audit log,
// and evidence attachments.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/skillchain/credvault/internal/logging"
	"github.com/skillchain/credvault/internal/server/models"
	"github.com/skillchain/credvault/internal/server/repositories/auditlog"
	"github.com/skillchain/credvault/internal/server/repositories/repomanager"
)

// AuditQuery narrows audit-trail reads.
type AuditQuery struct {
	Action models.AccessAction
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// AuditService records access events and serves audit queries. Statistics
// are always computed from the log at query time; there are no separate
// counters to drift.
type AuditService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *AuditService {
	return &AuditService{db: db, rm: rm, logger: logger.With("module", "audit")}
}

// Record appends one audit entry, best-effort. A persistence failure is
// surfaced to observability but never propagated: audit durability must not
// reverse an access decision that already happened.
func (s *AuditService) Record(ctx context.Context, entry *models.AccessLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.rm.AuditLog(s.db).Create(ctx, entry); err != nil {
		s.logger.Error(ctx, "audit write failed",
			"credential_id", entry.CredentialID,
			"action", entry.Action.String(),
			"error", err)
	}
}

// Query returns the audit trail of one credential, ownership-checked at the
// credential level. A credential owned by someone else reports
// common.ErrorNotFound.
func (s *AuditService) Query(ctx context.Context, credentialID, ownerID string, q AuditQuery) ([]*models.AccessLogEntry, error) {
	if _, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID); err != nil {
		return nil, err
	}
	return s.rm.AuditLog(s.db).ListByCredential(ctx, credentialID, filterFrom(q))
}

// GetUserAccessLogs returns the cross-credential audit view for a credential
// owner: every event touching any credential the user owns.
func (s *AuditService) GetUserAccessLogs(ctx context.Context, userID string, q AuditQuery) ([]*models.AccessLogEntry, error) {
	creds, err := s.rm.Credentials(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
	}
	return s.rm.AuditLog(s.db).ListByCredentials(ctx, ids, filterFrom(q))
}

// GetStatistics aggregates a credential's audit trail, ownership-checked.
func (s *AuditService) GetStatistics(ctx context.Context, credentialID, ownerID string) (*models.AccessStats, error) {
	if _, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID); err != nil {
		return nil, err
	}
	return s.rm.AuditLog(s.db).StatsByCredential(ctx, credentialID)
}

func filterFrom(q AuditQuery) auditlog.Filter {
	return auditlog.Filter{
		Action: q.Action,
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
}
