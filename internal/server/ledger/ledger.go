// Package ledger abstracts the external append-only anchor log. The ledger
// accepts a content digest and returns a transaction id and block height;
// consensus internals are out of scope and live behind this boundary.
package ledger

import (
	"context"
	"time"
)

// RecordStatus is the confirmation state the ledger reports for an anchored
// record.
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusConfirmed RecordStatus = "confirmed"
	StatusNotFound  RecordStatus = "not-found"
)

// SubmitResult is the ledger's acknowledgement of an anchored digest.
type SubmitResult struct {
	TransactionID string
	BlockNumber   int64
}

// VerifyResult reports whether the digest anchored at a transaction matches
// the digest the caller holds.
type VerifyResult struct {
	HashMatch bool
	Status    RecordStatus
}

// NetworkStatus is a health snapshot of the anchor network. Used for
// readiness reporting only; it never gates a write.
type NetworkStatus struct {
	Connected   bool
	BlockNumber int64
	NetworkID   string
}

// Client is the contract the credential store depends on. Submissions are
// idempotent on the ledger side: retrying the same digest never creates a
// duplicate semantic record, so this client never retries on its own and
// surfaces common.ErrorLedgerUnavailable instead.
type Client interface {
	SubmitRecord(ctx context.Context, digest []byte, metadata map[string]string, opts ...Option) (*SubmitResult, error)
	VerifyRecord(ctx context.Context, transactionID string, digest []byte, opts ...Option) (*VerifyResult, error)
	GetNetworkStatus(ctx context.Context) (*NetworkStatus, error)
}

// Opts carries per-call options.
type Opts struct {
	Timeout time.Duration
}

// Option mutates per-call Opts.
type Option func(*Opts)

// WithTimeout overrides the client's default timeout for one call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}
