// Package crypto provides authenticated encryption for tenant credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSize = 16
	tagSize   = 16
)

// ErrDecryptionFailed wraps every malformed-token or tamper failure so callers
// can treat them uniformly without seeing cipher internals.
var ErrDecryptionFailed = errors.New("credential decryption failed")

// Cipher performs AES-256-GCM encryption of API credentials. Tokens are stored
// as hex(nonce):hex(tag):hex(ciphertext) with a 16-byte nonce and 16-byte tag.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher creates a Cipher from a hex-encoded 32-byte key.
func NewCipher(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("credential key not configured")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// Encrypt encrypts plaintext with a fresh random nonce and returns the token.
// The plaintext itself is never logged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext must not be empty")
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends the 16-byte auth tag after the ciphertext
	sealed := c.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt parses a nonce:tag:ciphertext token and decrypts it with tag
// verification. Malformed tokens and failed verification both return an
// error wrapping ErrDecryptionFailed; garbage is never returned silently.
func (c *Cipher) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrDecryptionFailed, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad nonce encoding", ErrDecryptionFailed)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag encoding", ErrDecryptionFailed)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrDecryptionFailed)
	}

	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes", ErrDecryptionFailed, nonceSize)
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag must be %d bytes", ErrDecryptionFailed, tagSize)
	}

	plaintext, err := c.gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: verification failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

// Hint returns a masked suffix of the plaintext safe for display.
func Hint(plaintext string) string {
	if len(plaintext) <= 4 {
		return "****"
	}
	return "****" + plaintext[len(plaintext)-4:]
}
