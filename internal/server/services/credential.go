package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/cryptox"
	"github.com/skillchain/credvault/internal/dbx"
	"github.com/skillchain/credvault/internal/logging"
	"github.com/skillchain/credvault/internal/server/keystore"
	"github.com/skillchain/credvault/internal/server/ledger"
	"github.com/skillchain/credvault/internal/server/models"
	"github.com/skillchain/credvault/internal/server/repositories/repomanager"
)

// StoreCredentialParams carries the inputs for storing a new claim.
type StoreCredentialParams struct {
	UserID     string
	Type       models.CredentialType
	Issuer     string
	IssueDate  time.Time
	ExpiryDate *time.Time
	ClaimData  any
	Metadata   map[string]string
}

// VerificationResult reports a credential's integrity against the ledger.
type VerificationResult struct {
	IsValid      bool
	HashMatch    bool
	LedgerStatus ledger.RecordStatus
}

// CredentialService is the credential store. It orchestrates encrypt ->
// hash -> anchor -> persist on writes, ownership-checked reads, ledger
// verification, token-gated third-party access, and the deletion cascade.
type CredentialService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	custodian *keystore.Custodian
	ledger    ledger.Client
	audit     *AuditService
	logger    logging.Logger
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(db *sql.DB, rm repomanager.RepositoryManager, custodian *keystore.Custodian,
	lc ledger.Client, audit *AuditService, logger logging.Logger) *CredentialService {
	return &CredentialService{
		db:        db,
		rm:        rm,
		custodian: custodian,
		ledger:    lc,
		audit:     audit,
		logger:    logger.With("module", "credentials"),
	}
}

// StoreCredential encrypts the claim under the owner's key, anchors the
// ciphertext digest on the ledger, and persists the credential record. The
// digest is computed over the ciphertext, so the ledger never sees
// plaintext-derived information. A ledger failure aborts the whole
// operation; no partial record is persisted. Credential creation itself is
// not an access event and writes no audit entry.
func (s *CredentialService) StoreCredential(ctx context.Context, p StoreCredentialParams) (*models.Credential, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", common.ErrorValidation)
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown credential type %q", common.ErrorValidation, string(p.Type))
	}
	if p.ClaimData == nil {
		return nil, fmt.Errorf("%w: claim data must not be empty", common.ErrorValidation)
	}

	// Canonical serialization: encoding/json emits map keys in sorted order,
	// so equal claims serialize to equal bytes.
	plaintext, err := json.Marshal(p.ClaimData)
	if err != nil {
		return nil, fmt.Errorf("%w: claim data not serializable", common.ErrorValidation)
	}

	key, err := s.userKey(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	ciphertext, nonce, tag, err := cryptox.Encrypt(plaintext, key)
	if err != nil {
		return nil, common.ErrorInternal
	}

	digest := cryptox.Hash(ciphertext)

	anchor, err := s.ledger.SubmitRecord(ctx, digest, map[string]string{"record_type": "credential"})
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		ID:          uuid.NewString(),
		UserID:      p.UserID,
		Type:        p.Type,
		Issuer:      p.Issuer,
		IssueDate:   p.IssueDate,
		ExpiryDate:  p.ExpiryDate,
		Ciphertext:  ciphertext,
		Nonce:       nonce,
		AuthTag:     tag,
		Digest:      digest,
		LedgerTxID:  anchor.TransactionID,
		BlockNumber: anchor.BlockNumber,
		Metadata:    p.Metadata,
	}
	if err := s.rm.Credentials(s.db).Create(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// userKey fetches the user's key, provisioning one on first use.
func (s *CredentialService) userKey(ctx context.Context, userID string) ([]byte, error) {
	key, err := s.custodian.GetKey(ctx, userID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, common.ErrorKeyNotFound) {
		return nil, err
	}

	if err := s.custodian.GenerateKey(ctx, userID); err != nil {
		// A concurrent first submission may have won the race; re-fetch.
		if !errors.Is(err, common.ErrorKeyAlreadyExists) {
			return nil, err
		}
	}
	return s.custodian.GetKey(ctx, userID)
}

// GetCredential returns an owned credential's metadata, never auto-
// decrypting. A credential owned by someone else reports
// common.ErrorNotFound, indistinguishable from an absent one.
func (s *CredentialService) GetCredential(ctx context.Context, credentialID, userID string) (*models.Credential, error) {
	return s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, userID)
}

// ListUserCredentials returns all credentials the user owns, newest first.
func (s *CredentialService) ListUserCredentials(ctx context.Context, userID string) ([]*models.Credential, error) {
	return s.rm.Credentials(s.db).ListByUser(ctx, userID)
}

// DecryptCredentialData decrypts the credential's payload with the owning
// user's key. A missing key and a tag mismatch are both reported as
// common.ErrorDecryptionFailure; no fallback key is ever tried.
func (s *CredentialService) DecryptCredentialData(ctx context.Context, cred *models.Credential) ([]byte, error) {
	key, err := s.custodian.GetKey(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorKeyNotFound) {
			return nil, common.ErrorDecryptionFailure
		}
		return nil, err
	}
	defer common.WipeByteArray(key)

	return cryptox.Decrypt(cred.Ciphertext, key, cred.Nonce, cred.AuthTag)
}

// VerifyCredential checks an owned credential's integrity against the
// ledger. Nothing is recomputed locally: the stored digest and transaction
// id are sent to the ledger for confirmation.
func (s *CredentialService) VerifyCredential(ctx context.Context, credentialID, ownerID string) (*VerificationResult, error) {
	cred, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.verifyAgainstLedger(ctx, cred)
}

// VerifyCredentialWithToken performs ledger verification on behalf of a
// third party holding a bearer token. Unlike the owner path this is an
// access event: a valid token writes a verified entry, an unusable token
// writes access-denied and fails with common.ErrorUnauthorized.
func (s *CredentialService) VerifyCredentialWithToken(ctx context.Context, credentialID, token, sourceAddr, userAgent string) (*VerificationResult, error) {
	grant, cred, err := s.resolveGrant(ctx, credentialID, token, sourceAddr, userAgent)
	if err != nil {
		return nil, err
	}

	res, err := s.verifyAgainstLedger(ctx, cred)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AccessLogEntry{
		CredentialID: credentialID,
		AccessorID:   grant.GrantedTo,
		Action:       models.ActionVerified,
		Success:      res.IsValid,
		SourceAddr:   sourceAddr,
		UserAgent:    userAgent,
		Metadata:     map[string]string{"grant_id": grant.ID},
	})
	return res, nil
}

func (s *CredentialService) verifyAgainstLedger(ctx context.Context, cred *models.Credential) (*VerificationResult, error) {
	v, err := s.ledger.VerifyRecord(ctx, cred.LedgerTxID, cred.Digest)
	if err != nil {
		return nil, err
	}
	return &VerificationResult{
		IsValid:      v.HashMatch && v.Status == ledger.StatusConfirmed,
		HashMatch:    v.HashMatch,
		LedgerStatus: v.Status,
	}, nil
}

// VerifyAndAccessCredential is the third-party consumption path: it
// validates the bearer token and, on success, returns the decrypted payload.
// Exactly one audit entry is written per call, on the success path
// (accessed) and on every failure path (access-denied) alike.
func (s *CredentialService) VerifyAndAccessCredential(ctx context.Context, credentialID, token, sourceAddr, userAgent string) ([]byte, error) {
	grant, cred, err := s.resolveGrant(ctx, credentialID, token, sourceAddr, userAgent)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.DecryptCredentialData(ctx, cred)
	if err != nil {
		s.denied(ctx, credentialID, grant.GrantedTo, sourceAddr, userAgent, "decryption failed")
		return nil, err
	}

	s.audit.Record(ctx, &models.AccessLogEntry{
		CredentialID: credentialID,
		AccessorID:   grant.GrantedTo,
		Action:       models.ActionAccessed,
		Success:      true,
		SourceAddr:   sourceAddr,
		UserAgent:    userAgent,
		Metadata:     map[string]string{"grant_id": grant.ID},
	})
	return plaintext, nil
}

// resolveGrant maps a (credential id, token) pair to a usable grant and its
// credential, writing an access-denied audit entry and returning
// common.ErrorUnauthorized on every failure path.
func (s *CredentialService) resolveGrant(ctx context.Context, credentialID, token, sourceAddr, userAgent string) (*models.AccessGrant, *models.Credential, error) {
	grant, err := s.rm.Grants(s.db).GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.denied(ctx, credentialID, "unknown", sourceAddr, userAgent, "unknown token")
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, err
	}

	if grant.CredentialID != credentialID {
		s.denied(ctx, credentialID, grant.GrantedTo, sourceAddr, userAgent, "token bound to different credential")
		return nil, nil, common.ErrorUnauthorized
	}
	if !grant.Usable(time.Now()) {
		s.denied(ctx, credentialID, grant.GrantedTo, sourceAddr, userAgent, "grant revoked or expired")
		return nil, nil, common.ErrorUnauthorized
	}

	cred, err := s.rm.Credentials(s.db).GetByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.denied(ctx, credentialID, grant.GrantedTo, sourceAddr, userAgent, "credential deleted")
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, err
	}
	return grant, cred, nil
}

func (s *CredentialService) denied(ctx context.Context, credentialID, accessor, sourceAddr, userAgent, reason string) {
	s.audit.Record(ctx, &models.AccessLogEntry{
		CredentialID: credentialID,
		AccessorID:   accessor,
		Action:       models.ActionAccessDenied,
		Success:      false,
		SourceAddr:   sourceAddr,
		UserAgent:    userAgent,
		Metadata:     map[string]string{"reason": reason},
	})
}

// DeleteCredential is the erasure path. The cascade (soft-delete, revoke
// every grant, purge the attachment row, one summary audit entry) runs
// inside a single transaction: either all of it is visible or none of it.
// Prior audit history is retained. Returns true on success.
func (s *CredentialService) DeleteCredential(ctx context.Context, credentialID, userID string) (bool, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.rm.Credentials(tx).MarkDeleted(ctx, credentialID, userID); err != nil {
			return err
		}

		revoked, err := s.rm.Grants(tx).RevokeAllForCredential(ctx, credentialID)
		if err != nil {
			return err
		}

		if err := s.rm.Attachments(tx).DeleteByCredential(ctx, credentialID); err != nil {
			return err
		}

		// The summary entry is part of the cascade, so it shares the
		// transaction rather than going through the best-effort path.
		return s.rm.AuditLog(tx).Create(ctx, &models.AccessLogEntry{
			ID:           uuid.NewString(),
			CredentialID: credentialID,
			AccessorID:   userID,
			Action:       models.ActionRevoked,
			Success:      true,
			Metadata: map[string]string{
				"cascade":        "credential-deleted",
				"revoked_grants": fmt.Sprint(revoked),
			},
		})
	})
	if err != nil {
		return false, err
	}

	s.logger.Info(ctx, "credential deleted", "credential_id", credentialID)
	return true, nil
}

// GetNetworkStatus reports anchor-network health for readiness probes.
func (s *CredentialService) GetNetworkStatus(ctx context.Context) (*ledger.NetworkStatus, error) {
	return s.ledger.GetNetworkStatus(ctx)
}
