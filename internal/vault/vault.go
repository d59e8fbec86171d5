package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations is deliberately slow so derived keys resist brute force.
const pbkdf2Iterations = 120_000

const keyLength = 32

// ErrDecryption indicates ciphertext that is corrupt or was produced under a
// different key. Plaintext is never returned on failure.
var ErrDecryption = errors.New("vault: decryption failed")

// ErrNoKeyMaterial indicates the vault has neither a secret nor a
// passphrase+salt pair to work with.
var ErrNoKeyMaterial = errors.New("vault: no encryption secret or passphrase configured")

// Vault performs symmetric authenticated encryption of provider credentials.
// The key is fixed at construction and read-only afterwards.
type Vault struct {
	aead cipher.AEAD
}

// Options selects the vault key source. Secret is a base64 or raw 32-byte
// key; when empty, the key is derived from Passphrase and Salt via PBKDF2.
type Options struct {
	Secret     string
	Passphrase string
	Salt       string
}

// New constructs a Vault from the configured key material.
func New(opts Options) (*Vault, error) {
	key, errKey := resolveKey(opts)
	if errKey != nil {
		return nil, errKey
	}
	block, errCipher := aes.NewCipher(key)
	if errCipher != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", errCipher)
	}
	aead, errGCM := cipher.NewGCM(block)
	if errGCM != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", errGCM)
	}
	return &Vault{aead: aead}, nil
}

func resolveKey(opts Options) ([]byte, error) {
	secret := strings.TrimSpace(opts.Secret)
	if secret != "" {
		if decoded, errDecode := base64.StdEncoding.DecodeString(secret); errDecode == nil && len(decoded) == keyLength {
			return decoded, nil
		}
		if len(secret) == keyLength {
			return []byte(secret), nil
		}
		// Any other secret shape is reduced to a fixed-length key.
		sum := sha256.Sum256([]byte(secret))
		return sum[:], nil
	}
	if opts.Passphrase != "" && opts.Salt != "" {
		return pbkdf2.Key([]byte(opts.Passphrase), []byte(opts.Salt), pbkdf2Iterations, keyLength, sha256.New), nil
	}
	return nil, ErrNoKeyMaterial
}

// Encrypt seals the plaintext and returns a base64 nonce||ciphertext string.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", ErrNoKeyMaterial
	}
	if plaintext == "" {
		return "", errors.New("vault: empty plaintext")
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, errRead := io.ReadFull(rand.Reader, nonce); errRead != nil {
		return "", fmt.Errorf("vault: nonce: %w", errRead)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Tampered or foreign input
// fails with ErrDecryption.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", ErrNoKeyMaterial
	}
	raw, errDecode := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if errDecode != nil {
		return "", ErrDecryption
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) <= nonceSize {
		return "", ErrDecryption
	}
	plaintext, errOpen := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if errOpen != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// DefaultVisibleChars is the number of leading characters Mask preserves.
const DefaultVisibleChars = 4

// DefaultPrefixLength is the number of leading characters Prefix returns.
const DefaultPrefixLength = 7

// Mask returns a display string keeping the first visible characters of the
// key. Keys no longer than visible are fully masked.
func Mask(plaintext string, visible int) string {
	if visible <= 0 {
		visible = DefaultVisibleChars
	}
	if len(plaintext) <= visible {
		return strings.Repeat("*", len(plaintext))
	}
	return plaintext[:visible] + strings.Repeat("*", len(plaintext)-visible)
}

// Prefix returns the first n characters of the key for display listings.
func Prefix(plaintext string, n int) string {
	if n <= 0 {
		n = DefaultPrefixLength
	}
	if len(plaintext) <= n {
		return plaintext
	}
	return plaintext[:n]
}
