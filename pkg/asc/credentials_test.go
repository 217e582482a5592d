package asc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCredentialsParamsWin(t *testing.T) {
	t.Setenv("APP_STORE_CONNECT_KEY_ID", "env-key")
	t.Setenv("APP_STORE_CONNECT_ISSUER_ID", "env-issuer")
	t.Setenv("APP_STORE_CONNECT_KEY_CONTENT", "env-pem")

	creds, err := ResolveCredentials(CredentialParams{
		KeyID:      "param-key",
		IssuerID:   "param-issuer",
		KeyContent: "param-pem",
	})
	require.NoError(t, err)
	assert.Equal(t, "param-key", creds.KeyID)
	assert.Equal(t, "param-issuer", creds.IssuerID)
	assert.Equal(t, "param-pem", creds.PEM)
}

func TestResolveCredentialsFromEnv(t *testing.T) {
	t.Setenv("APP_STORE_CONNECT_KEY_ID", "env-key")
	t.Setenv("APP_STORE_CONNECT_ISSUER_ID", "env-issuer")
	t.Setenv("APP_STORE_CONNECT_KEY_CONTENT", "env-pem")

	creds, err := ResolveCredentials(CredentialParams{})
	require.NoError(t, err)
	assert.Equal(t, "env-key", creds.KeyID)
	assert.Equal(t, "env-pem", creds.PEM)
}

func TestResolveCredentialsKeyFile(t *testing.T) {
	t.Setenv("APP_STORE_CONNECT_KEY_ID", "env-key")
	t.Setenv("APP_STORE_CONNECT_ISSUER_ID", "env-issuer")
	t.Setenv("APP_STORE_CONNECT_KEY_CONTENT", "")

	keyFile := filepath.Join(t.TempDir(), "auth.p8")
	require.NoError(t, os.WriteFile(keyFile, []byte("file-pem\n"), 0o600))
	t.Setenv("APP_STORE_CONNECT_KEY_FILE", keyFile)

	creds, err := ResolveCredentials(CredentialParams{})
	require.NoError(t, err)
	assert.Equal(t, "file-pem", creds.PEM)
}

func TestResolveCredentialsMissing(t *testing.T) {
	t.Setenv("APP_STORE_CONNECT_KEY_ID", "")
	t.Setenv("APP_STORE_CONNECT_ISSUER_ID", "")
	t.Setenv("APP_STORE_CONNECT_KEY_CONTENT", "")
	t.Setenv("APP_STORE_CONNECT_KEY_FILE", "")

	_, err := ResolveCredentials(CredentialParams{})
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "APP_STORE_CONNECT_KEY_ID")

	_, err = ResolveCredentials(CredentialParams{KeyID: "k"})
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "APP_STORE_CONNECT_ISSUER_ID")

	_, err = ResolveCredentials(CredentialParams{KeyID: "k", IssuerID: "i"})
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "APP_STORE_CONNECT_KEY_CONTENT")
}
