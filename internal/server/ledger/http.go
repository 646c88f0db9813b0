package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/skillchain/credvault/internal/common"
)

// DefaultTimeout bounds a single anchor call. The ledger is the one
// network-bound collaborator in the subsystem; a hung call must surface
// common.ErrorLedgerUnavailable rather than block the caller indefinitely.
const DefaultTimeout = 10 * time.Second

// HTTPClient talks JSON over HTTP to an anchor service.
type HTTPClient struct {
	baseURL   string
	networkID string
	timeout   time.Duration
	client    *http.Client
}

// NewHTTPClient constructs a client for the anchor service at baseURL.
// A non-positive timeout falls back to DefaultTimeout.
func NewHTTPClient(baseURL, networkID string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:   baseURL,
		networkID: networkID,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Digest   string            `json:"digest"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type submitResponse struct {
	TransactionID string `json:"transaction_id"`
	BlockNumber   int64  `json:"block_number"`
}

type verifyResponse struct {
	HashMatch bool   `json:"hash_match"`
	Status    string `json:"status"`
}

type statusResponse struct {
	Connected   bool   `json:"connected"`
	BlockNumber int64  `json:"block_number"`
	NetworkID   string `json:"network_id"`
}

// SubmitRecord anchors a digest and returns the transaction id and block
// height. Transport failures and non-2xx responses map to
// common.ErrorLedgerUnavailable; the caller decides whether to retry.
func (c *HTTPClient) SubmitRecord(ctx context.Context, digest []byte, metadata map[string]string, opts ...Option) (*SubmitResult, error) {
	body, err := json.Marshal(submitRequest{
		Digest:   hex.EncodeToString(digest),
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}

	var out submitResponse
	if err := c.do(ctx, http.MethodPost, "/records", body, &out, opts...); err != nil {
		return nil, err
	}
	if out.TransactionID == "" {
		return nil, fmt.Errorf("%w: empty transaction id in response", common.ErrorLedgerUnavailable)
	}
	return &SubmitResult{TransactionID: out.TransactionID, BlockNumber: out.BlockNumber}, nil
}

// VerifyRecord asks the ledger whether the digest anchored at transactionID
// matches the given digest.
func (c *HTTPClient) VerifyRecord(ctx context.Context, transactionID string, digest []byte, opts ...Option) (*VerifyResult, error) {
	path := fmt.Sprintf("/records/%s/verify?digest=%s",
		url.PathEscape(transactionID), hex.EncodeToString(digest))

	var out verifyResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out, opts...); err != nil {
		return nil, err
	}

	status := RecordStatus(out.Status)
	switch status {
	case StatusPending, StatusConfirmed, StatusNotFound:
	default:
		return nil, fmt.Errorf("%w: unknown record status %q", common.ErrorLedgerUnavailable, out.Status)
	}
	return &VerifyResult{HashMatch: out.HashMatch, Status: status}, nil
}

// GetNetworkStatus reports anchor-network health.
func (c *HTTPClient) GetNetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &NetworkStatus{
		Connected:   out.Connected,
		BlockNumber: out.BlockNumber,
		NetworkID:   out.NetworkID,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any, opts ...Option) error {
	o := Opts{Timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Network-Id", c.networkID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Internal ledger error detail stays out of user-visible failures.
		return fmt.Errorf("%w: status %d", common.ErrorLedgerUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", common.ErrorLedgerUnavailable, err)
	}
	return nil
}
