// Package fieldcipher implements authenticated encryption for individual
// sensitive payload fields. Each encrypted field is a self-describing,
// base64-encoded blob carrying its own nonce and authentication tag, so a
// fresh random nonce is used on every call and nonce reuse is structurally
// avoided.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/zecrypt/vault/internal/common"
)

// KeySize is the required symmetric key length (AES-256).
const KeySize = 32

const (
	nonceSize = 12
	tagSize   = 16
)

// Cipher encrypts and decrypts field values with a single AEAD key.
// The AEAD is derived once at construction; a Cipher is safe for
// concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives a Cipher from a 256-bit key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("fieldcipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns
// base64(nonce ∥ tag ∥ ciphertext).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)

	// Seal appends the tag to the ciphertext; the blob layout puts the
	// tag right after the nonce instead.
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, nonceSize+tagSize+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. Any malformed blob or failed tag verification
// yields common.ErrIntegrity; the input is never returned as a fallback.
func (c *Cipher) Decrypt(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIntegrity, err)
	}
	if len(raw) < nonceSize+tagSize {
		return nil, fmt.Errorf("%w: blob too short", common.ErrIntegrity)
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrIntegrity
	}
	return plaintext, nil
}

// EncryptString is Encrypt for string values.
func (c *Cipher) EncryptString(s string) (string, error) {
	return c.Encrypt([]byte(s))
}

// DecryptString is Decrypt for string values.
func (c *Cipher) DecryptString(blob string) (string, error) {
	b, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Provider hands out derived Ciphers keyed by key id. It replaces the
// process-wide cipher cache of earlier revisions with an explicitly owned,
// injectable resource.
type Provider struct {
	mu      sync.Mutex
	ciphers map[string]*Cipher
}

func NewProvider() *Provider {
	return &Provider{ciphers: make(map[string]*Cipher)}
}

// Cipher returns the cached Cipher for keyID, deriving it from key on
// first use.
func (p *Provider) Cipher(keyID string, key []byte) (*Cipher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.ciphers[keyID]; ok {
		return c, nil
	}
	c, err := New(key)
	if err != nil {
		return nil, err
	}
	p.ciphers[keyID] = c
	return c, nil
}
