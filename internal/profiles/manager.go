package profiles

import (
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/signpost-ci/signpost/pkg/asc"
)

// PortalAPI is the slice of the App Store Connect client the profile
// manager talks to.
type PortalAPI interface {
	FetchBundleIDs(identifier string) ([]asc.BundleID, error)
	CreateBundleID(identifier, name string, platform asc.BundleIDPlatform) (*asc.BundleID, error)
	FetchCertificates(types ...asc.CertificateType) ([]asc.Certificate, error)
	FetchProfiles(bundleIDID, bundleIdentifier string, ptype asc.ProfileType) ([]asc.Profile, error)
	CreateProfile(name string, ptype asc.ProfileType, bundleIDID string, certIDs []string) (*asc.Profile, error)
	DeleteProfile(id string) error
	DownloadProfile(id string) ([]byte, error)
}

// Params select which profile to ensure. CertificateID and Name are
// optional; the best distribution certificate and a conventional name
// are chosen when absent.
type Params struct {
	BundleIdentifier string
	Type             asc.ProfileType
	CertificateID    string
	Name             string
	Platform         asc.BundleIDPlatform
}

// Result describes the profile that survived reconciliation, with its
// downloaded content.
type Result struct {
	ID             string
	UUID           string
	Name           string
	Expires        time.Time
	BundleIDID     string
	CertificateIDs []string
	Content        []byte
}

// Manager reconciles provisioning profiles for one bundle ID and type.
type Manager struct {
	API PortalAPI
}

func NewManager(client *asc.Client) *Manager {
	return &Manager{API: client}
}

// EnsureProfile makes sure exactly one valid profile exists for the
// bundle ID and type, creating the bundle ID and the profile as needed,
// deleting duplicates and invalid profiles, and downloading the winner.
func (m *Manager) EnsureProfile(p Params) (*Result, error) {
	if p.Platform == "" {
		p.Platform = asc.IOS
	}

	bundleID, err := m.ensureBundleID(p.BundleIdentifier, p.Platform)
	if err != nil {
		return nil, err
	}

	remoteCerts, err := m.API.FetchCertificates(asc.CT_DISTRIBUTION, asc.CT_IOS_DISTRIBUTION)
	if err != nil {
		return nil, err
	}
	validCertIDs := make(map[string]bool, len(remoteCerts))
	for _, cert := range remoteCerts {
		if !cert.IsExpired() {
			validCertIDs[cert.ID] = true
		}
	}

	certID := p.CertificateID
	if certID == "" {
		if certID = bestCertificateID(remoteCerts); certID == "" {
			return nil, fmt.Errorf("no valid distribution certificate on the portal; ensure the certificate first")
		}
	}

	candidates, err := m.API.FetchProfiles(bundleID.ID, p.BundleIdentifier, p.Type)
	if err != nil {
		return nil, err
	}

	best, doomed := Reconcile(candidates, validCertIDs, time.Now())
	m.deleteAll(doomed)

	if best == nil {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("%s %s", p.BundleIdentifier, profileLabel(p.Type))
		}
		best, err = m.createWithRetry(name, p, bundleID.ID, certID, validCertIDs)
		if err != nil {
			return nil, err
		}
	}

	content, err := m.API.DownloadProfile(best.ID)
	if err != nil {
		return nil, err
	}

	return &Result{
		ID:             best.ID,
		UUID:           best.Attributes.UUID,
		Name:           best.Attributes.Name,
		Expires:        best.Attributes.ExpirationDate.Time(),
		BundleIDID:     best.BundleIDID(),
		CertificateIDs: best.CertificateIDs(),
		Content:        content,
	}, nil
}

func (m *Manager) ensureBundleID(identifier string, platform asc.BundleIDPlatform) (*asc.BundleID, error) {
	ids, err := m.API.FetchBundleIDs(identifier)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return &ids[0], nil
	}
	log.WithField("identifier", identifier).Info("bundle ID not registered, creating it")
	return m.API.CreateBundleID(identifier, "", platform)
}

// createWithRetry creates the profile, and when the portal claims an
// equivalent profile already exists, refetches and reruns selection once
// instead of failing outright.
func (m *Manager) createWithRetry(name string, p Params, bundleIDID, certID string, validCertIDs map[string]bool) (*asc.Profile, error) {
	created, err := m.API.CreateProfile(name, p.Type, bundleIDID, []string{certID})
	if err == nil {
		log.WithFields(log.Fields{"name": name, "id": created.ID}).Info("created provisioning profile")
		return created, nil
	}
	if !errors.Is(err, asc.ErrDuplicateResource) {
		return nil, err
	}

	log.WithField("name", name).Warn("portal reports an equivalent profile already exists, refetching")
	candidates, ferr := m.API.FetchProfiles(bundleIDID, p.BundleIdentifier, p.Type)
	if ferr != nil {
		return nil, ferr
	}
	best, doomed := Reconcile(candidates, validCertIDs, time.Now())
	m.deleteAll(doomed)
	if best == nil {
		return nil, err
	}
	return best, nil
}

// deleteAll removes doomed profiles remotely, logging per-item failures
// without aborting the reconciliation.
func (m *Manager) deleteAll(doomed []asc.Profile) {
	for _, p := range doomed {
		if err := m.API.DeleteProfile(p.ID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"profile": p.Attributes.Name,
				"id":      p.ID,
			}).Warn("failed to delete profile")
			continue
		}
		log.WithFields(log.Fields{
			"profile": p.Attributes.Name,
			"id":      p.ID,
		}).Info("deleted profile")
	}
}

// bestCertificateID picks the unexpired distribution certificate that
// expires last.
func bestCertificateID(certs []asc.Certificate) string {
	var best *asc.Certificate
	for i := range certs {
		if certs[i].IsExpired() {
			continue
		}
		if best == nil || best.Attributes.ExpirationDate.Before(certs[i].Attributes.ExpirationDate) {
			best = &certs[i]
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

func profileLabel(t asc.ProfileType) string {
	switch t {
	case asc.IOS_APP_STORE, asc.MAC_APP_STORE, asc.TVOS_APP_STORE, asc.MAC_CATALYST_APP_STORE:
		return "AppStore"
	case asc.IOS_APP_ADHOC, asc.TVOS_APP_ADHOC:
		return "AdHoc"
	case asc.IOS_APP_INHOUSE, asc.TVOS_APP_INHOUSE:
		return "InHouse"
	default:
		return "Development"
	}
}
