package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signpost-ci/signpost/internal/vault"
	"github.com/signpost-ci/signpost/pkg/asc"
)

type fakeAPI struct {
	certs     []asc.Certificate
	issued    *asc.Certificate
	fetches   int
	created   int
	deleted   []string
	createErr error
}

func (f *fakeAPI) FetchCertificates(types ...asc.CertificateType) ([]asc.Certificate, error) {
	f.fetches++
	return f.certs, nil
}

func (f *fakeAPI) CreateCertificate(csrPEM string, ctype asc.CertificateType) (*asc.Certificate, error) {
	f.created++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.issued, nil
}

func (f *fakeAPI) DeleteCertificate(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func remoteCert(t *testing.T, id string, content []byte, expires time.Time) asc.Certificate {
	t.Helper()
	var c asc.Certificate
	c.ID = id
	c.Type = "certificates"
	c.Attributes.Name = "Apple Distribution: Acme Corp"
	c.Attributes.CertificateType = asc.CT_DISTRIBUTION
	c.Attributes.CertificateContent = content
	c.Attributes.ExpirationDate = asc.Date(expires)
	return c
}

// selfSignedDER issues a throwaway certificate so the PKCS#12 round trip
// in the create path works on real bytes.
func selfSignedDER(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Apple Distribution: Acme Corp"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(1, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func newTestManager(t *testing.T, api *fakeAPI) (*Manager, *vault.MemStore, *MemKeychain) {
	t.Helper()
	secrets := vault.NewMemStore()
	keychain := NewMemKeychain()
	return &Manager{
		API:      api,
		Storage:  vault.Storage{Root: t.TempDir()},
		Secrets:  secrets,
		Keychain: keychain,
		IssuerID: "issuer-1",
	}, secrets, keychain
}

func TestCIModeMissingKeyFailsWithoutCreating(t *testing.T) {
	t.Setenv("CERTIFICATE_ENCRYPTION_KEY", "")
	api := &fakeAPI{}
	m, _, _ := newTestManager(t, api)
	m.CI = true

	_, err := m.EnsureDistributionCertificate()
	require.ErrorIs(t, err, vault.ErrLocalStore)
	assert.Contains(t, err.Error(), "CERTIFICATE_ENCRYPTION_KEY")
	assert.Zero(t, api.created)
	assert.Zero(t, api.fetches)
}

func TestCIModeMissingCacheFailsWithoutCreating(t *testing.T) {
	api := &fakeAPI{}
	m, secrets, _ := newTestManager(t, api)
	m.CI = true
	require.NoError(t, secrets.Set(vault.EncryptionKeyAccount("issuer-1"), "the-key"))

	_, err := m.EnsureDistributionCertificate()
	require.ErrorIs(t, err, vault.ErrLocalStore)
	assert.Zero(t, api.created)
}

func TestCIModeExpiredCacheFailsBeforeDecrypt(t *testing.T) {
	api := &fakeAPI{}
	m, secrets, _ := newTestManager(t, api)
	m.CI = true
	require.NoError(t, secrets.Set(vault.EncryptionKeyAccount("issuer-1"), "the-key"))

	meta := vault.Metadata{SHA1: "AAAA", ExpiresAt: time.Now().Add(-24 * time.Hour), ID: "CERT1"}
	// sealed with a different key, decrypting it would fail loudly
	require.NoError(t, m.Storage.Save(storageName, []byte("p12"), meta, "some-other-key"))

	_, err := m.EnsureDistributionCertificate()
	require.ErrorIs(t, err, vault.ErrLocalStore)
	assert.Contains(t, err.Error(), "expired")
	assert.Zero(t, api.created)
}

func TestCIModeRestores(t *testing.T) {
	api := &fakeAPI{}
	m, secrets, keychain := newTestManager(t, api)
	m.CI = true
	require.NoError(t, secrets.Set(vault.EncryptionKeyAccount("issuer-1"), "the-key"))

	p12 := []byte("opaque p12 payload")
	fingerprint := fmt.Sprintf("%X", sha1.Sum(p12))
	meta := vault.Metadata{
		SHA1:       fingerprint,
		CommonName: "Apple Distribution: Acme Corp",
		ExpiresAt:  time.Now().AddDate(1, 0, 0),
		ID:         "CERT1",
	}
	require.NoError(t, m.Storage.Save(storageName, p12, meta, "the-key"))

	res, err := m.EnsureDistributionCertificate()
	require.NoError(t, err)
	assert.Equal(t, "CERT1", res.ID)
	assert.Equal(t, fingerprint, res.Fingerprint)

	installed, err := keychain.Contains(fingerprint)
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Zero(t, api.created)
	assert.Zero(t, api.fetches)
}

func TestInteractiveIdempotentWhenInstalledAndRemoteMatches(t *testing.T) {
	content := []byte("der certificate bytes")
	fingerprint := fmt.Sprintf("%X", sha1.Sum(content))
	api := &fakeAPI{certs: []asc.Certificate{
		remoteCert(t, "CERT1", content, time.Now().AddDate(1, 0, 0)),
	}}
	m, _, keychain := newTestManager(t, api)

	meta := vault.Metadata{SHA1: fingerprint, ExpiresAt: time.Now().AddDate(1, 0, 0), ID: "CERT1"}
	require.NoError(t, m.Storage.Save(storageName, content, meta, "k"))
	keychain.Fingerprints[fingerprint] = true

	for run := 0; run < 2; run++ {
		res, err := m.EnsureDistributionCertificate()
		require.NoError(t, err)
		assert.Equal(t, "CERT1", res.ID)
		assert.Equal(t, fingerprint, res.Fingerprint)
	}
	assert.Zero(t, api.created)
	assert.Empty(t, api.deleted)
}

func TestInteractiveRestoresFromCache(t *testing.T) {
	content := []byte("der certificate bytes")
	fingerprint := fmt.Sprintf("%X", sha1.Sum(content))
	api := &fakeAPI{certs: []asc.Certificate{
		remoteCert(t, "CERT1", content, time.Now().AddDate(1, 0, 0)),
	}}
	m, secrets, keychain := newTestManager(t, api)
	require.NoError(t, secrets.Set(vault.EncryptionKeyAccount("issuer-1"), "the-key"))

	meta := vault.Metadata{SHA1: fingerprint, ExpiresAt: time.Now().AddDate(1, 0, 0), ID: "CERT1"}
	// the fake keychain tracks opaque imports by content hash, so the
	// cached payload doubles as the DER bytes
	require.NoError(t, m.Storage.Save(storageName, content, meta, "the-key"))

	res, err := m.EnsureDistributionCertificate()
	require.NoError(t, err)
	assert.Equal(t, fingerprint, res.Fingerprint)

	installed, err := keychain.Contains(fingerprint)
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Zero(t, api.created)
}

func TestInteractiveTerminalWhenRemoteExistsWithoutLocalCopy(t *testing.T) {
	content := []byte("der certificate bytes")
	api := &fakeAPI{certs: []asc.Certificate{
		remoteCert(t, "CERT1", content, time.Now().AddDate(1, 0, 0)),
	}}
	m, _, _ := newTestManager(t, api)

	_, err := m.EnsureDistributionCertificate()
	require.ErrorIs(t, err, vault.ErrLocalStore)
	assert.Contains(t, err.Error(), "teammate")
	assert.Zero(t, api.created)
}

func TestInteractiveCleansUpFingerprintMismatch(t *testing.T) {
	remoteContent := []byte("the portal certificate")
	api := &fakeAPI{certs: []asc.Certificate{
		remoteCert(t, "CERT2", remoteContent, time.Now().AddDate(1, 0, 0)),
	}}
	m, _, keychain := newTestManager(t, api)

	staleFingerprint := "AAAA0123456789AAAA0123456789AAAA01234567"
	meta := vault.Metadata{SHA1: staleFingerprint, ExpiresAt: time.Now().AddDate(1, 0, 0), ID: "CERT1"}
	require.NoError(t, m.Storage.Save(storageName, []byte("stale p12"), meta, "k"))
	keychain.Fingerprints[staleFingerprint] = true

	_, err := m.EnsureDistributionCertificate()
	require.ErrorIs(t, err, vault.ErrLocalStore)

	installed, err := keychain.Contains(staleFingerprint)
	require.NoError(t, err)
	assert.False(t, installed)
	assert.False(t, m.Storage.EncryptedExists(storageName))
}

func TestInteractiveCreatesWhenPortalEmpty(t *testing.T) {
	der := selfSignedDER(t)
	fingerprint := fmt.Sprintf("%X", sha1.Sum(der))
	issued := remoteCert(t, "CERTNEW", der, time.Now().AddDate(1, 0, 0))
	api := &fakeAPI{issued: &issued}
	m, secrets, keychain := newTestManager(t, api)

	res, err := m.EnsureDistributionCertificate()
	require.NoError(t, err)
	assert.Equal(t, "CERTNEW", res.ID)
	assert.Equal(t, fingerprint, res.Fingerprint)
	assert.Equal(t, 1, api.created)

	key, ok, err := secrets.Get(vault.EncryptionKeyAccount("issuer-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, key)

	assert.True(t, m.Storage.EncryptedExists(storageName))
	loaded, err := m.Storage.LoadMetadata(storageName)
	require.NoError(t, err)
	assert.Equal(t, fingerprint, loaded.SHA1)

	installed, err := keychain.Contains(fingerprint)
	require.NoError(t, err)
	assert.True(t, installed)

	restored, err := m.Storage.Restore(storageName, key)
	require.NoError(t, err)
	cert, err := ParseP12(restored)
	require.NoError(t, err)
	assert.Equal(t, der, cert.Raw)
}
