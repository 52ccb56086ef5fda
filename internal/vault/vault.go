// Package vault encrypts and decrypts stored provider credentials.
// Credentials live encrypted at rest and are only decrypted transiently
// in memory while a provider operation runs.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeyLength is the required length of the encryption key in bytes (AES-256).
const KeyLength = 32

// maskChar replaces hidden characters in display copies of credentials.
const maskChar = "*"

// ErrDecryption is returned when a ciphertext is malformed or fails
// authentication.
var ErrDecryption = errors.New("vault: decryption failed")

// Vault performs symmetric encryption of credential values with a key
// fixed at process start.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a 32-character key. A key of any other length
// is a configuration error and should abort startup.
func New(key string) (*Vault, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("vault: encryption key must be exactly %d characters, got %d", KeyLength, len(key))
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create gcm: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext into the form "nonceHex:cipherHex".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	ciphertext := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt is the inverse of Encrypt. Returns ErrDecryption for malformed
// input or ciphertext that fails authentication.
func (v *Vault) Decrypt(encrypted string) (string, error) {
	nonceHex, cipherHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", ErrDecryption
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", ErrDecryption
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", ErrDecryption
	}

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// Mask produces the display form of a credential: the last ~10% of
// characters (rounded up) stay visible, everything before them is masked.
// The result always has the same rune count as the input; counting runes
// rather than bytes keeps multibyte credentials valid UTF-8.
func Mask(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	runes := []rune(plaintext)
	visible := (len(runes) + 9) / 10
	return strings.Repeat(maskChar, len(runes)-visible) + string(runes[len(runes)-visible:])
}

// EncryptMap encrypts every value of a credential map.
func (v *Vault) EncryptMap(config map[string]string) (map[string]string, error) {
	encrypted := make(map[string]string, len(config))
	for key, value := range config {
		enc, err := v.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("vault: encrypt %q: %w", key, err)
		}
		encrypted[key] = enc
	}
	return encrypted, nil
}

// DecryptMap decrypts every value of a credential map.
func (v *Vault) DecryptMap(config map[string]string) (map[string]string, error) {
	decrypted := make(map[string]string, len(config))
	for key, value := range config {
		dec, err := v.Decrypt(value)
		if err != nil {
			return nil, fmt.Errorf("vault: decrypt %q: %w", key, err)
		}
		decrypted[key] = dec
	}
	return decrypted, nil
}

// MaskMap produces display copies for every value of a credential map.
func MaskMap(config map[string]string) map[string]string {
	masked := make(map[string]string, len(config))
	for key, value := range config {
		masked[key] = Mask(value)
	}
	return masked
}
