package certs

import (
	"crypto/sha1"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// ErrKeychainOperation covers keychain import, find and delete failures.
var ErrKeychainOperation = errors.New("keychain operation failed")

// Keychain is the narrow surface the certificate manager needs from the
// login keychain. The concrete adapter shells out to the security tool;
// tests use MemKeychain.
type Keychain interface {
	// Contains reports whether a certificate with the given SHA-1
	// fingerprint (uppercase hex) is installed.
	Contains(sha1 string) (bool, error)
	// ImportP12 installs a PKCS#12 bundle, key included.
	ImportP12(p12 []byte, password string) error
	// DeleteBySHA1 removes the certificate with the given fingerprint.
	DeleteBySHA1(sha1 string) error
}

// SecurityCLI drives the macOS security command against the login
// keychain.
type SecurityCLI struct{}

func loginKeychainPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	path := filepath.Join(home, "Library", "Keychains", "login.keychain-db")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(home, "Library", "Keychains", "login.keychain")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return "", fmt.Errorf("%w: cannot find login keychain at default locations", ErrKeychainOperation)
		}
	}
	return path, nil
}

func (SecurityCLI) Contains(fingerprint string) (bool, error) {
	keychain, err := loginKeychainPath()
	if err != nil {
		return false, err
	}
	out, err := exec.Command("security", "find-certificate", "-a", "-Z", keychain).CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("%w: find-certificate: %v: %s", ErrKeychainOperation, err, strings.TrimSpace(string(out)))
	}
	return strings.Contains(string(out), strings.ToUpper(fingerprint)), nil
}

func (SecurityCLI) ImportP12(p12 []byte, password string) error {
	keychain, err := loginKeychainPath()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "signpost-*.p12")
	if err != nil {
		return fmt.Errorf("writing temporary bundle: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(p12); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temporary bundle: %w", err)
	}
	tmp.Close()

	log.WithField("keychain", keychain).Debug("importing certificate bundle")
	out, err := exec.Command("security", "import", tmp.Name(),
		"-k", keychain, "-P", password, "-T", "/usr/bin/codesign").CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "MAC verification failed") || strings.Contains(msg, "passphrase you entered is not correct") {
			return fmt.Errorf("%w: the bundle password is wrong, the encrypted certificate was likely sealed with a different encryption key", ErrKeychainOperation)
		}
		return fmt.Errorf("%w: import: %v: %s", ErrKeychainOperation, err, msg)
	}
	return nil
}

func (SecurityCLI) DeleteBySHA1(fingerprint string) error {
	keychain, err := loginKeychainPath()
	if err != nil {
		return err
	}
	out, err := exec.Command("security", "delete-certificate", "-Z", strings.ToUpper(fingerprint), keychain).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: delete-certificate: %v: %s", ErrKeychainOperation, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// MemKeychain is an in-memory Keychain for tests.
type MemKeychain struct {
	Fingerprints map[string]bool
	ImportErr    error
}

func NewMemKeychain() *MemKeychain {
	return &MemKeychain{Fingerprints: make(map[string]bool)}
}

func (m *MemKeychain) Contains(fingerprint string) (bool, error) {
	return m.Fingerprints[strings.ToUpper(fingerprint)], nil
}

func (m *MemKeychain) ImportP12(p12 []byte, password string) error {
	if m.ImportErr != nil {
		return m.ImportErr
	}
	if cert, err := ParseP12(p12); err == nil {
		m.Fingerprints[fmt.Sprintf("%X", sha1.Sum(cert.Raw))] = true
		return nil
	}
	// tests also import opaque payloads, track them by content hash
	m.Fingerprints[fmt.Sprintf("%X", sha1.Sum(p12))] = true
	return nil
}

func (m *MemKeychain) DeleteBySHA1(fingerprint string) error {
	delete(m.Fingerprints, strings.ToUpper(fingerprint))
	return nil
}
