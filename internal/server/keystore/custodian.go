// Package keystore implements the key custodian: the sole component that
// generates, hands out, and destroys per-user symmetric encryption keys.
// Keys are wrapped under a KEK derived from the custodian master passphrase
// before they reach storage; raw key material exists only inside a single
// call.
package keystore

import (
	"context"
	"fmt"

	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/cryptox"
	"github.com/skillchain/credvault/internal/server/models"
	"github.com/skillchain/credvault/internal/server/repositories/userkeys"
)

// Custodian is an explicit service instance over an injected key repository.
// There is no process-wide key state; lifetime and test isolation follow the
// instance.
type Custodian struct {
	repo userkeys.Repository
	kek  []byte
}

// NewCustodian builds a custodian whose KEK is derived from the master
// passphrase and salt via argon2id.
func NewCustodian(repo userkeys.Repository, masterPassphrase, salt []byte) *Custodian {
	return &Custodian{
		repo: repo,
		kek:  cryptox.DeriveKEK(masterPassphrase, salt),
	}
}

// GenerateKey creates and stores a new key for a user who has none. A user
// who already holds a key gets common.ErrorKeyAlreadyExists; callers must
// delete the old key first.
func (c *Custodian) GenerateKey(ctx context.Context, userID string) error {
	raw := cryptox.NewAESKey()
	defer common.WipeByteArray(raw)

	wrapped, nonce, tag, err := cryptox.WrapKey(raw, c.kek)
	if err != nil {
		return fmt.Errorf("key wrap error: %w", err)
	}

	return c.repo.Create(ctx, &models.UserKey{
		UserID:  userID,
		Wrapped: wrapped,
		Nonce:   nonce,
		Tag:     tag,
	})
}

// GetKey returns the user's raw key, or common.ErrorKeyNotFound. The caller
// must wipe the returned slice as soon as the encrypt/decrypt call using it
// completes, and must never cache it.
func (c *Custodian) GetKey(ctx context.Context, userID string) ([]byte, error) {
	key, err := c.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, err := cryptox.UnwrapKey(key.Wrapped, c.kek, key.Nonce, key.Tag)
	if err != nil {
		// Wrong KEK or a tampered row; either way the key is unusable.
		return nil, err
	}
	return raw, nil
}

// DeleteKey irreversibly destroys the user's key. Every credential encrypted
// under it becomes permanently unreadable; subsequent decrypt attempts fail
// with common.ErrorDecryptionFailure rather than yielding garbage. Logging
// the destruction is the caller's responsibility.
func (c *Custodian) DeleteKey(ctx context.Context, userID string) error {
	return c.repo.Delete(ctx, userID)
}
