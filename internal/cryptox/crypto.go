// Package cryptox implements the stateless cryptographic operations used by
// the credential store: authenticated symmetric encryption (AES-256-GCM),
// deterministic content hashing (SHA-256), key wrapping for at-rest custody,
// and asymmetric key-pair generation for external verifiers.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/skillchain/credvault/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	nonceSize = 12
	tagSize   = 16
)

// NewAESKey returns a fresh random 32-byte AES-256 key.
func NewAESKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// Encrypt seals plaintext with AES-256-GCM under the given key.
//
// A new random 12-byte nonce is generated on every call; callers cannot
// supply one, so nonce reuse under the same key cannot happen by
// construction. The 16-byte GCM authentication tag is returned separately
// from the ciphertext so the three parts can be persisted as distinct
// columns.
//
// Returns:
//   - ciphertext: the encrypted payload, without the tag.
//   - nonce: the randomly generated 12-byte nonce.
//   - tag: the 16-byte authentication tag.
//   - err: non-nil if the key length is invalid or the RNG fails.
func Encrypt(plaintext, key []byte) (ciphertext, nonce, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)

	// Seal appends the tag to the ciphertext; split them apart.
	ciphertext = sealed[:len(sealed)-tagSize]
	tag = sealed[len(sealed)-tagSize:]

	return ciphertext, nonce, tag, nil
}

// Decrypt opens a ciphertext produced by Encrypt. The tag is verified as part
// of GCM open; any mismatch (tampered ciphertext, wrong key, wrong nonce)
// yields common.ErrorDecryptionFailure with no partial plaintext.
func Decrypt(ciphertext, key, nonce, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorDecryptionFailure, err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorDecryptionFailure, err)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrorDecryptionFailure
	}

	return plaintext, nil
}

// Hash returns the SHA-256 digest of data. Used for content-integrity
// anchoring on the ledger, not for secrecy.
func Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// GenerateKeyPair returns a fresh Ed25519 key pair for external-verifier use
// cases. Not used in the base store/grant flow.
func GenerateKeyPair() (publicKey, privateKey []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// DeriveKEK derives a 32-byte key-encryption key from the custodian master
// passphrase and salt using argon2id. Deterministic for fixed inputs.
func DeriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// WrapKey encrypts a raw user key under the custodian KEK for at-rest
// storage. The returned parts have Encrypt's layout.
func WrapKey(rawKey, kek []byte) (wrapped, nonce, tag []byte, err error) {
	return Encrypt(rawKey, kek)
}

// UnwrapKey reverses WrapKey. A KEK mismatch or tampered row yields
// common.ErrorDecryptionFailure.
func UnwrapKey(wrapped, kek, nonce, tag []byte) ([]byte, error) {
	return Decrypt(wrapped, kek, nonce, tag)
}
