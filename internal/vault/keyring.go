package vault

import (
	"fmt"

	"github.com/99designs/keyring"
	"github.com/apex/log"
)

const serviceName = "signpost"

// EncryptionKeyAccount namespaces the cache encryption key per developer
// account so keys for different issuers never collide.
func EncryptionKeyAccount(issuerID string) string {
	return "certificate-encryption-key:" + issuerID
}

// SecretStore holds small named secrets, in practice the certificate
// cache encryption key. The concrete adapter talks to the OS credential
// store; tests use MemStore.
type SecretStore interface {
	Set(account, secret string) error
	Get(account string) (string, bool, error)
	Delete(account string) error
}

type keyringStore struct {
	ring keyring.Keyring
}

// OpenSecretStore opens the OS credential store. On platforms without a
// usable backend it degrades to a store that holds nothing and accepts
// nothing, with a warning, rather than failing the whole run.
func OpenSecretStore() SecretStore {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    serviceName,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		KeychainTrustApplication:       true,
	})
	if err != nil {
		log.WithError(err).Warn("OS credential store unavailable, encryption keys will not persist")
		return noopStore{}
	}
	return &keyringStore{ring: ring}
}

func (s *keyringStore) Set(account, secret string) error {
	if err := s.ring.Set(keyring.Item{
		Key:         account,
		Data:        []byte(secret),
		Label:       serviceName,
		Description: "certificate cache encryption key",
	}); err != nil {
		return fmt.Errorf("storing secret %s: %w", account, err)
	}
	return nil
}

func (s *keyringStore) Get(account string) (string, bool, error) {
	item, err := s.ring.Get(account)
	if err == keyring.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading secret %s: %w", account, err)
	}
	return string(item.Data), true, nil
}

func (s *keyringStore) Delete(account string) error {
	if err := s.ring.Remove(account); err != nil && err != keyring.ErrKeyNotFound {
		return fmt.Errorf("deleting secret %s: %w", account, err)
	}
	return nil
}

type noopStore struct{}

func (noopStore) Set(string, string) error         { return nil }
func (noopStore) Get(string) (string, bool, error) { return "", false, nil }
func (noopStore) Delete(string) error              { return nil }

// MemStore is an in-memory SecretStore for tests.
type MemStore struct {
	Secrets map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{Secrets: make(map[string]string)}
}

func (m *MemStore) Set(account, secret string) error {
	m.Secrets[account] = secret
	return nil
}

func (m *MemStore) Get(account string) (string, bool, error) {
	secret, ok := m.Secrets[account]
	return secret, ok, nil
}

func (m *MemStore) Delete(account string) error {
	delete(m.Secrets, account)
	return nil
}
