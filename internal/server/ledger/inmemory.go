package ledger

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// InMemoryClient is a process-local ledger used by tests and single-node
// development wiring. Submissions are idempotent per digest, mirroring the
// contract of the real anchor service.
type InMemoryClient struct {
	mu          sync.Mutex
	networkID   string
	blockNumber int64
	byDigest    map[string]*SubmitResult
	byTx        map[string]string // transaction id -> hex digest
}

// NewInMemoryClient constructs an empty in-memory ledger.
func NewInMemoryClient(networkID string) *InMemoryClient {
	return &InMemoryClient{
		networkID: networkID,
		byDigest:  make(map[string]*SubmitResult),
		byTx:      make(map[string]string),
	}
}

// SubmitRecord anchors a digest. Re-submitting a digest returns the original
// transaction rather than a duplicate record.
func (c *InMemoryClient) SubmitRecord(ctx context.Context, digest []byte, metadata map[string]string, opts ...Option) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := hex.EncodeToString(digest)
	if res, ok := c.byDigest[key]; ok {
		return res, nil
	}

	c.blockNumber++
	res := &SubmitResult{TransactionID: uuid.NewString(), BlockNumber: c.blockNumber}
	c.byDigest[key] = res
	c.byTx[res.TransactionID] = key
	return res, nil
}

// VerifyRecord confirms the digest anchored at transactionID.
func (c *InMemoryClient) VerifyRecord(ctx context.Context, transactionID string, digest []byte, opts ...Option) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	anchored, ok := c.byTx[transactionID]
	if !ok {
		return &VerifyResult{HashMatch: false, Status: StatusNotFound}, nil
	}
	return &VerifyResult{
		HashMatch: anchored == hex.EncodeToString(digest),
		Status:    StatusConfirmed,
	}, nil
}

// GetNetworkStatus reports the in-memory chain height.
func (c *InMemoryClient) GetNetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &NetworkStatus{Connected: true, BlockNumber: c.blockNumber, NetworkID: c.networkID}, nil
}
