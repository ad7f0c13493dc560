// Package importfile reads and writes the versioned import file envelope,
// optionally encrypting its payload with a password.
package importfile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Encryption parameters. The wire format is
// base64(salt || iv || tag || ciphertext).
const (
	SaltSize         = 32
	IVSize           = 12
	TagSize          = 16
	KeySize          = 32
	PBKDF2Iterations = 100_000
)

// ErrDecryptFailed means the password is wrong or the blob was tampered with.
var ErrDecryptFailed = errors.New("importfile: decryption failed (wrong password or corrupted data)")

// ErrMalformedCiphertext means the blob is not valid base64 or is too short.
var ErrMalformedCiphertext = errors.New("importfile: malformed ciphertext")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("importfile: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("importfile: create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with a key derived from password and a fresh random
// salt and IV.
func Encrypt(plaintext []byte, password string) (string, error) {
	salt := make([]byte, SaltSize)
	iv := make([]byte, IVSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("importfile: generate salt: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("importfile: generate iv: %w", err)
	}

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return "", err
	}

	// Seal appends the tag after the ciphertext; the wire format puts it first.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	out := make([]byte, 0, SaltSize+IVSize+TagSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(blob, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, err)
	}
	if len(raw) < SaltSize+IVSize+TagSize {
		return nil, ErrMalformedCiphertext
	}

	salt := raw[:SaltSize]
	iv := raw[SaltSize : SaltSize+IVSize]
	tag := raw[SaltSize+IVSize : SaltSize+IVSize+TagSize]
	ciphertext := raw[SaltSize+IVSize+TagSize:]

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
