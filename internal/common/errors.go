// Package common defines shared constants and sentinel errors used across
// CredVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors. ErrorNotFound also covers ownership failures
	// on credentials: a caller probing someone else's credential id learns
	// nothing beyond "no such record".
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Access-token errors: the bearer token presented by a third party is
	// invalid, expired, revoked, or bound to a different credential.
	ErrorUnauthorized = errors.New("unauthorized")

	// Crypto errors. A failed GCM tag check and a missing user key are
	// deliberately indistinguishable to callers.
	ErrorDecryptionFailure = errors.New("decryption failure")

	// Ledger errors (transient external failure; never retried here).
	ErrorLedgerUnavailable = errors.New("ledger unavailable")

	// Key Custodian preconditions.
	ErrorKeyAlreadyExists = errors.New("key already exists")
	ErrorKeyNotFound      = errors.New("key not found")
)
