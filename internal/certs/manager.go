package certs

import (
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"

	"github.com/signpost-ci/signpost/internal/vault"
	"github.com/signpost-ci/signpost/pkg/asc"
)

// storageName keys the encrypted bundle inside the on-disk cache.
const storageName = "distribution"

// PortalAPI is the slice of the App Store Connect client the certificate
// manager talks to.
type PortalAPI interface {
	FetchCertificates(types ...asc.CertificateType) ([]asc.Certificate, error)
	CreateCertificate(csrPEM string, ctype asc.CertificateType) (*asc.Certificate, error)
	DeleteCertificate(id string) error
}

// Result describes the certificate that ended up installed and valid.
type Result struct {
	ID          string
	Name        string
	Fingerprint string
	Expires     time.Time
}

// Manager reconciles the distribution certificate across the portal, the
// keychain and the encrypted cache.
type Manager struct {
	API      PortalAPI
	Storage  vault.Storage
	Secrets  vault.SecretStore
	Keychain Keychain
	IssuerID string

	// CI restricts the manager to restoring cached material, never
	// creating. Detected from the CI environment flag by default.
	CI bool
}

// NewManager wires a manager against the real portal client, login
// keychain and OS credential store.
func NewManager(client *asc.Client, projectRoot, issuerID string) *Manager {
	return &Manager{
		API:      client,
		Storage:  vault.Storage{Root: projectRoot},
		Secrets:  vault.OpenSecretStore(),
		Keychain: SecurityCLI{},
		IssuerID: issuerID,
		CI:       detectCI(),
	}
}

// EnsureDistributionCertificate makes sure a valid distribution
// certificate is installed in the keychain and mirrored in the encrypted
// cache, creating one on the portal only as a last resort. Evaluated in
// order:
//
//  1. CI mode restores from the encrypted cache or fails, it never
//     creates.
//  2. A certificate already in the keychain is cross-checked against the
//     portal by fingerprint; a mismatch cleans up and falls through.
//  3. A cached encrypted bundle is restored into the keychain and
//     re-validated.
//  4. A certificate that exists on the portal but cannot be produced
//     locally is a terminal failure, a duplicate is never created.
//  5. Only when the portal has none is a new certificate created.
func (m *Manager) EnsureDistributionCertificate() (*Result, error) {
	if m.CI {
		return m.restoreForCI()
	}

	remote, err := m.API.FetchCertificates(asc.CT_DISTRIBUTION, asc.CT_IOS_DISTRIBUTION)
	if err != nil {
		return nil, err
	}
	remoteByFingerprint := make(map[string]asc.Certificate, len(remote))
	for _, cert := range remote {
		if !cert.IsExpired() {
			remoteByFingerprint[cert.Fingerprint()] = cert
		}
	}

	meta, _ := m.Storage.LoadMetadata(storageName)

	if meta != nil {
		installed, err := m.Keychain.Contains(meta.SHA1)
		if err != nil {
			return nil, err
		}
		if installed {
			if cert, ok := remoteByFingerprint[meta.SHA1]; ok {
				log.WithField("sha1", meta.SHA1).Debug("installed certificate matches portal, nothing to do")
				return resultFrom(cert, meta.SHA1), nil
			}
			log.WithField("sha1", meta.SHA1).Warn("installed certificate no longer matches the portal, cleaning up")
			if err := m.cleanupLocal(meta.SHA1); err != nil {
				return nil, err
			}
			meta = nil
		}
	}

	if meta != nil && !meta.ExpiresAt.IsZero() && meta.ExpiresAt.Before(time.Now()) {
		log.WithField("expired", meta.ExpiresAt).Warn("cached certificate has expired, cleaning up")
		if err := m.cleanupLocal(meta.SHA1); err != nil {
			return nil, err
		}
		meta = nil
	}

	if meta != nil && m.Storage.EncryptedExists(storageName) {
		cert, err := m.restoreIntoKeychain(meta, remoteByFingerprint)
		if err != nil {
			return nil, err
		}
		if cert != nil {
			return cert, nil
		}
		meta = nil
	}

	if len(remoteByFingerprint) > 0 {
		return nil, fmt.Errorf("%w: a distribution certificate exists on the portal but no usable local copy was found; "+
			"obtain the shared encrypted certificate bundle (fastlane/certificates) from a teammate, "+
			"or revoke the portal certificate and rerun to create a fresh one", vault.ErrLocalStore)
	}

	return m.create()
}

// restoreForCI is the CI-mode path: decrypt the cached bundle and import
// it, failing with remediation on anything missing.
func (m *Manager) restoreForCI() (*Result, error) {
	key, ok, err := m.Secrets.Get(vault.EncryptionKeyAccount(m.IssuerID))
	if err != nil {
		return nil, err
	}
	if !ok {
		key = os.Getenv("CERTIFICATE_ENCRYPTION_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no encryption key available in CI; set CERTIFICATE_ENCRYPTION_KEY from your CI secrets", vault.ErrLocalStore)
	}

	meta, err := m.Storage.LoadMetadata(storageName)
	if err != nil {
		return nil, fmt.Errorf("%w; run the certificate setup on a developer machine and commit the fastlane/certificates directory", err)
	}
	if !m.Storage.EncryptedExists(storageName) {
		return nil, fmt.Errorf("%w: no encrypted certificate bundle in the cache; run the certificate setup on a developer machine first", vault.ErrLocalStore)
	}
	if !meta.ExpiresAt.IsZero() && meta.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: cached certificate expired on %s; recreate it on a developer machine", vault.ErrLocalStore, meta.ExpiresAt.Format(time.RFC1123))
	}

	p12, err := m.Storage.Restore(storageName, key)
	if err != nil {
		return nil, err
	}
	if err := m.Keychain.ImportP12(p12, P12Password); err != nil {
		return nil, err
	}
	log.WithField("sha1", meta.SHA1).Info("restored certificate into keychain")
	return &Result{ID: meta.ID, Name: meta.CommonName, Fingerprint: meta.SHA1, Expires: meta.ExpiresAt}, nil
}

// restoreIntoKeychain decrypts the cached bundle, installs it, and
// returns the result when the portal confirms the fingerprint. A stale
// bundle is cleaned up and nil is returned to let the caller fall
// through.
func (m *Manager) restoreIntoKeychain(meta *vault.Metadata, remote map[string]asc.Certificate) (*Result, error) {
	key, ok, err := m.Secrets.Get(vault.EncryptionKeyAccount(m.IssuerID))
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("no encryption key in the credential store, cannot restore cached certificate")
		return nil, nil
	}

	p12, err := m.Storage.Restore(storageName, key)
	if err != nil {
		return nil, err
	}

	if _, matches := remote[meta.SHA1]; !matches {
		log.WithField("sha1", meta.SHA1).Warn("cached certificate no longer exists on the portal, cleaning up")
		if err := m.cleanupLocal(meta.SHA1); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := m.Keychain.ImportP12(p12, P12Password); err != nil {
		return nil, err
	}
	installed, err := m.Keychain.Contains(meta.SHA1)
	if err != nil {
		return nil, err
	}
	if !installed {
		return nil, fmt.Errorf("%w: certificate %s did not appear in the keychain after import", ErrKeychainOperation, meta.SHA1)
	}

	cert := remote[meta.SHA1]
	log.WithField("sha1", meta.SHA1).Info("restored certificate into keychain")
	return resultFrom(cert, meta.SHA1), nil
}

// create generates a key and CSR, obtains a fresh certificate from the
// portal and mirrors it locally.
func (m *Manager) create() (*Result, error) {
	log.Info("no distribution certificate on the portal, creating one")

	req, err := NewSigningRequest()
	if err != nil {
		return nil, err
	}
	cert, err := m.API.CreateCertificate(req.CSRPEM, asc.CT_DISTRIBUTION)
	if err != nil {
		return nil, err
	}
	if parsed, err := x509.ParseCertificate(cert.Attributes.CertificateContent); err == nil {
		log.WithFields(log.Fields{
			"kind": IdentityKind(parsed),
			"cn":   parsed.Subject.CommonName,
		}).Debug("issued certificate")
	}

	p12, err := BuildP12(cert.Attributes.CertificateContent, req.Key)
	if err != nil {
		return nil, err
	}
	fingerprint := cert.Fingerprint()

	account := vault.EncryptionKeyAccount(m.IssuerID)
	key, ok, err := m.Secrets.Get(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		key = vault.GenerateEncryptionKey()
		if err := m.Secrets.Set(account, key); err != nil {
			return nil, err
		}
		log.Info("generated a new certificate encryption key; share it with your CI via CERTIFICATE_ENCRYPTION_KEY")
	}

	now := time.Now().UTC()
	meta := vault.Metadata{
		SHA1:       fingerprint,
		CommonName: cert.Attributes.Name,
		ExpiresAt:  cert.Attributes.ExpirationDate.Time(),
		CreatedAt:  now,
		ID:         cert.ID,
	}
	if err := m.Storage.Save(storageName, p12, meta, key); err != nil {
		return nil, err
	}
	if err := m.Keychain.ImportP12(p12, P12Password); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"id":   cert.ID,
		"sha1": fingerprint,
	}).Info("created and installed distribution certificate")
	return resultFrom(*cert, fingerprint), nil
}

// detectCI reports whether this run happens on a CI worker. CI systems
// set CI=true; an explicit CI=false opts out.
func detectCI() bool {
	v := os.Getenv("CI")
	return v != "" && v != "false"
}

func (m *Manager) cleanupLocal(fingerprint string) error {
	if installed, err := m.Keychain.Contains(fingerprint); err == nil && installed {
		if err := m.Keychain.DeleteBySHA1(fingerprint); err != nil {
			return err
		}
	}
	return m.Storage.Remove(storageName)
}

func resultFrom(cert asc.Certificate, fingerprint string) *Result {
	return &Result{
		ID:          cert.ID,
		Name:        cert.Attributes.Name,
		Fingerprint: fingerprint,
		Expires:     cert.Attributes.ExpirationDate.Time(),
	}
}
