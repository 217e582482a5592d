package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageSaveRestore(t *testing.T) {
	s := Storage{Root: t.TempDir()}
	meta := Metadata{
		SHA1:       "ABCDEF0123456789ABCDEF0123456789ABCDEF01",
		CommonName: "Apple Distribution: Acme Corp",
		ExpiresAt:  time.Now().AddDate(1, 0, 0).UTC().Truncate(time.Second),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		ID:         "CERT1",
	}

	require.False(t, s.EncryptedExists("distribution"))
	require.NoError(t, s.Save("distribution", []byte("p12 bundle bytes"), meta, "secret"))
	require.True(t, s.EncryptedExists("distribution"))

	enc := filepath.Join(s.Root, "fastlane", "certificates", "distribution.p12.enc")
	_, err := os.Stat(enc)
	require.NoError(t, err)
	raw, err := os.ReadFile(enc)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "p12 bundle bytes")

	restored, err := s.Restore("distribution", "secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("p12 bundle bytes"), restored)

	loaded, err := s.LoadMetadata("distribution")
	require.NoError(t, err)
	assert.Equal(t, meta.SHA1, loaded.SHA1)
	assert.Equal(t, meta.CommonName, loaded.CommonName)
	assert.True(t, meta.ExpiresAt.Equal(loaded.ExpiresAt))
	assert.Equal(t, meta.ID, loaded.ID)
}

func TestStorageRestoreMissing(t *testing.T) {
	s := Storage{Root: t.TempDir()}
	_, err := s.Restore("distribution", "secret")
	assert.ErrorIs(t, err, ErrLocalStore)

	_, err = s.LoadMetadata("distribution")
	assert.ErrorIs(t, err, ErrLocalStore)
}

func TestStorageRemove(t *testing.T) {
	s := Storage{Root: t.TempDir()}
	require.NoError(t, s.Remove("distribution"))

	require.NoError(t, s.Save("distribution", []byte("bytes"), Metadata{ID: "C"}, "k"))
	require.NoError(t, s.Remove("distribution"))
	assert.False(t, s.EncryptedExists("distribution"))
	_, err := s.LoadMetadata("distribution")
	assert.Error(t, err)
}

func TestEncryptionKeyAccount(t *testing.T) {
	assert.Equal(t, "certificate-encryption-key:issuer-1", EncryptionKeyAccount("issuer-1"))
	a := NewMemStore()
	require.NoError(t, a.Set(EncryptionKeyAccount("issuer-1"), "key-a"))
	require.NoError(t, a.Set(EncryptionKeyAccount("issuer-2"), "key-b"))
	got, ok, err := a.Get(EncryptionKeyAccount("issuer-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "key-a", got)
}
