package asc

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v8"
)

// Credentials is a resolved App Store Connect API credential set. It is
// immutable once resolved and never persisted.
type Credentials struct {
	KeyID    string
	IssuerID string
	PEM      string // private key material (.p8 contents)
}

// CredentialParams are the caller-supplied credential fields. Any empty
// field falls back to its environment variable, and key material falls
// back further to the key file path.
type CredentialParams struct {
	KeyID       string
	IssuerID    string
	KeyContent  string
	KeyFilePath string
}

type credentialEnv struct {
	KeyID      string `env:"APP_STORE_CONNECT_KEY_ID"`
	IssuerID   string `env:"APP_STORE_CONNECT_ISSUER_ID"`
	KeyContent string `env:"APP_STORE_CONNECT_KEY_CONTENT"`
	KeyFile    string `env:"APP_STORE_CONNECT_KEY_FILE"`
}

// ResolveCredentials gathers and validates API credentials. Resolution
// order per field: explicit parameter > environment variable > (for key
// material) key file contents.
func ResolveCredentials(p CredentialParams) (*Credentials, error) {
	var e credentialEnv
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parsing credential environment: %w", err)
	}

	keyID := firstNonEmpty(p.KeyID, e.KeyID)
	if keyID == "" {
		return nil, fmt.Errorf("%w: key ID; set APP_STORE_CONNECT_KEY_ID or pass --kid", ErrMissingCredential)
	}

	issuerID := firstNonEmpty(p.IssuerID, e.IssuerID)
	if issuerID == "" {
		return nil, fmt.Errorf("%w: issuer ID; set APP_STORE_CONNECT_ISSUER_ID or pass --iss", ErrMissingCredential)
	}

	keyFile := firstNonEmpty(p.KeyFilePath, e.KeyFile)
	pem := strings.TrimSpace(firstNonEmpty(p.KeyContent, e.KeyContent))
	if keyFile != "" {
		if data, err := os.ReadFile(keyFile); err == nil {
			pem = strings.TrimSpace(string(data))
		}
	}
	if pem == "" {
		return nil, fmt.Errorf("%w: private key; set APP_STORE_CONNECT_KEY_CONTENT (p8 contents) or APP_STORE_CONNECT_KEY_FILE (path to .p8), or pass --p8", ErrMissingCredential)
	}

	return &Credentials{
		KeyID:    keyID,
		IssuerID: issuerID,
		PEM:      pem,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
