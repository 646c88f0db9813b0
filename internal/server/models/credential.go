// Package models defines the persistent entities of the credential custody
// subsystem: credentials, per-user encryption keys, access grants, audit log
// entries, and evidence attachments.
package models

import (
	"fmt"
	"time"
)

// CredentialType is the closed set of claim kinds the store accepts.
type CredentialType string

const (
	CredentialTypeDegree        CredentialType = "degree"
	CredentialTypeCertification CredentialType = "certification"
	CredentialTypeTranscript    CredentialType = "transcript"
	CredentialTypeLicense       CredentialType = "license"
)

// ParseCredentialType converts a stored string into a CredentialType,
// rejecting anything outside the closed set.
func ParseCredentialType(s string) (CredentialType, error) {
	switch t := CredentialType(s); t {
	case CredentialTypeDegree, CredentialTypeCertification, CredentialTypeTranscript, CredentialTypeLicense:
		return t, nil
	default:
		return "", fmt.Errorf("unknown credential type %q", s)
	}
}

// Valid reports whether t is one of the defined credential types.
func (t CredentialType) Valid() bool {
	_, err := ParseCredentialType(string(t))
	return err == nil
}

func (t CredentialType) String() string { return string(t) }

// Credential is an encrypted, hash-anchored record of a verifiable claim.
//
// The payload is stored as ciphertext+nonce+tag produced by cryptox.Encrypt.
// Digest is the SHA-256 of the ciphertext exactly as it was anchored on the
// ledger; it is computed once at write time and never recomputed. Rows are
// immutable after creation except for Metadata and the soft-delete flag.
type Credential struct {
	ID          string
	UserID      string
	Type        CredentialType
	Issuer      string
	IssueDate   time.Time
	ExpiryDate  *time.Time
	Ciphertext  []byte
	Nonce       []byte
	AuthTag     []byte
	Digest      []byte
	LedgerTxID  string
	BlockNumber int64
	Deleted     bool
	CreatedAt   time.Time
	Metadata    map[string]string
}
