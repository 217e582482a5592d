// Package vault persists exported signing material encrypted at rest and
// keeps the encryption key in the OS credential store.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrLocalStore covers local cache failures: decrypt failure, missing
// encrypted files, expired cached material.
var ErrLocalStore = errors.New("local certificate store error")

const keySize = 32
const nonceSize = 24

// GenerateEncryptionKey returns a fresh random passphrase for encrypting
// the certificate cache.
func GenerateEncryptionKey() string {
	return uuid.NewString()
}

// normalizeKey accepts a passphrase of any length. Anything that is not
// exactly the cipher key size is hashed down to it.
func normalizeKey(key string) *[keySize]byte {
	var k [keySize]byte
	if len(key) == keySize {
		copy(k[:], key)
		return &k
	}
	k = sha256.Sum256([]byte(key))
	return &k
}

// Encrypt seals plaintext with a per-call random nonce and returns
// base64(nonce || ciphertext).
func Encrypt(plain []byte, key string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, normalizeKey(key))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure, wrong key included, surfaces the
// same generic message so nothing about the key or plaintext leaks.
func Decrypt(encoded, key string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(sealed) <= nonceSize {
		return nil, fmt.Errorf("%w: failed to decrypt", ErrLocalStore)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, normalizeKey(key))
	if !ok {
		return nil, fmt.Errorf("%w: failed to decrypt", ErrLocalStore)
	}
	return plain, nil
}
