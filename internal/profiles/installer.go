package profiles

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/blacktop/go-plist"
	"github.com/fullsailor/pkcs7"
)

// Installer copies downloaded profiles into the directory Xcode reads
// them from. Dir defaults to the per-user standard location.
type Installer struct {
	Dir string
}

func NewInstaller() (*Installer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	return &Installer{Dir: filepath.Join(home, "Library", "MobileDevice", "Provisioning Profiles")}, nil
}

// Install writes the profile content under its UUID and returns the
// destination path.
func (i *Installer) Install(content []byte) (string, error) {
	uuid, err := UUIDFromProfile(content)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(i.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating profiles directory %s: %w", i.Dir, err)
	}
	dest := filepath.Join(i.Dir, uuid+".mobileprovision")
	if existing, err := os.ReadFile(dest); err == nil && bytes.Equal(existing, content) {
		log.WithField("path", dest).Debug("profile already installed")
		return dest, nil
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return "", fmt.Errorf("writing profile to %s: %w", dest, err)
	}
	log.WithField("path", dest).Info("installed provisioning profile")
	return dest, nil
}

// UUIDFromProfile extracts the UUID from a signed .mobileprovision,
// which is a PKCS#7 envelope around a plist.
func UUIDFromProfile(content []byte) (string, error) {
	p7, err := pkcs7.Parse(content)
	if err != nil {
		return "", fmt.Errorf("parsing PKCS#7 envelope: %w", err)
	}
	if len(p7.Content) == 0 {
		return "", fmt.Errorf("no content in PKCS#7 envelope")
	}

	var profile struct {
		UUID string `plist:"UUID,omitempty"`
	}
	if _, err := plist.Unmarshal(p7.Content, &profile); err != nil {
		return "", fmt.Errorf("decoding profile plist: %w", err)
	}
	if profile.UUID == "" {
		return "", fmt.Errorf("profile plist carries no UUID")
	}
	return profile.UUID, nil
}
