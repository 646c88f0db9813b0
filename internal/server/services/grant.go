package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/logging"
	"github.com/skillchain/credvault/internal/server/models"
	"github.com/skillchain/credvault/internal/server/repositories/repomanager"
)

// Allowed bounds for grant expiry, in days.
const (
	MinExpiresInDays = 1
	MaxExpiresInDays = 365
)

// grantTokenBytes sizes the random bearer token (64 hex characters).
const grantTokenBytes = 32

// GrantService is the access grant manager: it issues, validates, and
// revokes the time-boxed bearer tokens that let third parties read one
// credential's decrypted payload.
type GrantService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	audit  *AuditService
	logger logging.Logger
}

// NewGrantService constructs a GrantService.
func NewGrantService(db *sql.DB, rm repomanager.RepositoryManager, audit *AuditService, logger logging.Logger) *GrantService {
	return &GrantService{db: db, rm: rm, audit: audit, logger: logger.With("module", "grants")}
}

// GrantAccess issues a new grant on an owned credential. The bearer token is
// cryptographically random and globally unique: the token column's unique
// constraint turns a collision into a hard error, never a silent retry.
// expiresInDays outside [1, 365] fails with common.ErrorValidation.
func (s *GrantService) GrantAccess(ctx context.Context, credentialID, grantedTo string, expiresInDays int, purpose, ownerID string) (*models.AccessGrant, error) {
	if expiresInDays < MinExpiresInDays || expiresInDays > MaxExpiresInDays {
		return nil, fmt.Errorf("%w: expiresInDays must be between %d and %d",
			common.ErrorValidation, MinExpiresInDays, MaxExpiresInDays)
	}
	if grantedTo == "" {
		return nil, fmt.Errorf("%w: grantee must not be empty", common.ErrorValidation)
	}

	if _, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID); err != nil {
		return nil, err
	}

	token, err := common.MakeRandHexString(grantTokenBytes)
	if err != nil {
		return nil, common.ErrorInternal
	}

	grant := &models.AccessGrant{
		ID:           uuid.NewString(),
		CredentialID: credentialID,
		GrantedBy:    ownerID,
		GrantedTo:    grantedTo,
		Token:        token,
		Purpose:      purpose,
		ExpiresAt:    time.Now().AddDate(0, 0, expiresInDays),
	}
	if err := s.rm.Grants(s.db).Create(ctx, grant); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AccessLogEntry{
		CredentialID: credentialID,
		AccessorID:   grantedTo,
		Action:       models.ActionGranted,
		Success:      true,
		Metadata:     map[string]string{"grant_id": grant.ID, "purpose": purpose},
	})

	return grant, nil
}

// IsAccessGrantValid reports whether a grant with this token exists, is not
// revoked, and has not expired. Pure read: logging happens at the point of
// actual data access, not here.
func (s *GrantService) IsAccessGrantValid(ctx context.Context, token string) (bool, error) {
	grant, err := s.rm.Grants(s.db).GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return grant.Usable(time.Now()), nil
}

// RevokeAccessGrant revokes an owned grant by id. Idempotent: revoking an
// already-revoked grant succeeds and returns false to signal no state
// change.
func (s *GrantService) RevokeAccessGrant(ctx context.Context, grantID, ownerID string) (bool, error) {
	grant, err := s.rm.Grants(s.db).GetByID(ctx, grantID)
	if err != nil {
		return false, err
	}
	return s.revoke(ctx, grant, ownerID)
}

// RevokeAccessByToken revokes an owned grant by its bearer token.
func (s *GrantService) RevokeAccessByToken(ctx context.Context, token, ownerID string) (bool, error) {
	grant, err := s.rm.Grants(s.db).GetByToken(ctx, token)
	if err != nil {
		return false, err
	}
	return s.revoke(ctx, grant, ownerID)
}

func (s *GrantService) revoke(ctx context.Context, grant *models.AccessGrant, ownerID string) (bool, error) {
	// A grant issued by someone else is reported as absent.
	if grant.GrantedBy != ownerID {
		return false, common.ErrorNotFound
	}

	changed, err := s.rm.Grants(s.db).Revoke(ctx, grant.ID)
	if err != nil {
		return false, err
	}
	if changed {
		s.audit.Record(ctx, &models.AccessLogEntry{
			CredentialID: grant.CredentialID,
			AccessorID:   grant.GrantedTo,
			Action:       models.ActionRevoked,
			Success:      true,
			Metadata:     map[string]string{"grant_id": grant.ID},
		})
	}
	return changed, nil
}

// RevokeAllCredentialAccess revokes every non-revoked grant for an owned
// credential and returns the count revoked.
func (s *GrantService) RevokeAllCredentialAccess(ctx context.Context, credentialID, ownerID string) (int64, error) {
	if _, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID); err != nil {
		return 0, err
	}

	n, err := s.rm.Grants(s.db).RevokeAllForCredential(ctx, credentialID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit.Record(ctx, &models.AccessLogEntry{
			CredentialID: credentialID,
			AccessorID:   ownerID,
			Action:       models.ActionRevoked,
			Success:      true,
			Metadata:     map[string]string{"revoked_grants": fmt.Sprint(n)},
		})
	}
	return n, nil
}

// ListCredentialGrants enumerates grants on an owned credential. Grantees
// hold no ownership rights and cannot list grants.
func (s *GrantService) ListCredentialGrants(ctx context.Context, credentialID, ownerID string) ([]*models.AccessGrant, error) {
	if _, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID); err != nil {
		return nil, err
	}
	return s.rm.Grants(s.db).ListByCredential(ctx, credentialID)
}
