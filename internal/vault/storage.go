package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// certDir is where encrypted bundles and their metadata sidecars live,
// relative to the project root. The layout is shared with other tooling
// so teammates can exchange the cache directory wholesale.
const certDir = "fastlane/certificates"

// Metadata is the plaintext sidecar describing an encrypted certificate
// bundle, enough to validate it without decrypting.
type Metadata struct {
	SHA1       string    `yaml:"sha1"`
	CommonName string    `yaml:"common_name"`
	ExpiresAt  time.Time `yaml:"expires_at"`
	CreatedAt  time.Time `yaml:"created_at"`
	ID         string    `yaml:"id"`
}

// Storage is the encrypted-at-rest certificate cache rooted at a project
// checkout.
type Storage struct {
	Root string
}

func (s Storage) encryptedPath(name string) string {
	return filepath.Join(s.Root, certDir, name+".p12.enc")
}

func (s Storage) metadataPath(name string) string {
	return filepath.Join(s.Root, certDir, name+".yaml")
}

// EncryptedExists reports whether an encrypted bundle is cached under the
// given name.
func (s Storage) EncryptedExists(name string) bool {
	_, err := os.Stat(s.encryptedPath(name))
	return err == nil
}

// Save encrypts the PKCS#12 bundle and writes it with its metadata
// sidecar, creating the cache directory if needed.
func (s Storage) Save(name string, p12 []byte, meta Metadata, key string) error {
	if err := os.MkdirAll(filepath.Join(s.Root, certDir), 0o755); err != nil {
		return fmt.Errorf("creating certificate cache dir: %w", err)
	}

	sealed, err := Encrypt(p12, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.encryptedPath(name), []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("writing encrypted certificate: %w", err)
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encoding certificate metadata: %w", err)
	}
	if err := os.WriteFile(s.metadataPath(name), data, 0o644); err != nil {
		return fmt.Errorf("writing certificate metadata: %w", err)
	}
	return nil
}

// Restore decrypts and returns the cached PKCS#12 bundle.
func (s Storage) Restore(name, key string) ([]byte, error) {
	sealed, err := os.ReadFile(s.encryptedPath(name))
	if err != nil {
		return nil, fmt.Errorf("%w: no encrypted certificate at %s", ErrLocalStore, s.encryptedPath(name))
	}
	return Decrypt(string(sealed), key)
}

// LoadMetadata reads the metadata sidecar for a cached bundle.
func (s Storage) LoadMetadata(name string) (*Metadata, error) {
	data, err := os.ReadFile(s.metadataPath(name))
	if err != nil {
		return nil, fmt.Errorf("%w: no certificate metadata at %s", ErrLocalStore, s.metadataPath(name))
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: corrupt certificate metadata: %v", ErrLocalStore, err)
	}
	return &meta, nil
}

// Remove deletes the encrypted bundle and its sidecar. Missing files are
// not an error.
func (s Storage) Remove(name string) error {
	if err := os.Remove(s.encryptedPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing encrypted certificate: %w", err)
	}
	if err := os.Remove(s.metadataPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing certificate metadata: %w", err)
	}
	return nil
}
