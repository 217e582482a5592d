// Package profiles reconciles provisioning profiles on the developer
// portal down to a single valid profile per bundle ID and type, and
// installs the winner locally.
package profiles

import (
	"time"

	"github.com/apex/log"

	"github.com/signpost-ci/signpost/pkg/asc"
)

// expiryWindow is how close to expiration a profile may get before it is
// treated as invalid and recreated.
const expiryWindow = 30 * 24 * time.Hour

// Reconcile validates each candidate against the portal's certificate
// list and the expiry window, keeps the valid profile that expires last,
// and queues every other candidate for deletion. Input order does not
// matter.
func Reconcile(candidates []asc.Profile, validCertIDs map[string]bool, now time.Time) (best *asc.Profile, doomed []asc.Profile) {
	var valid []asc.Profile
	for _, p := range candidates {
		if reason := invalidReason(p, validCertIDs, now); reason != "" {
			log.WithFields(log.Fields{
				"profile": p.Attributes.Name,
				"id":      p.ID,
				"reason":  reason,
			}).Warn("profile failed validation")
			doomed = append(doomed, p)
			continue
		}
		valid = append(valid, p)
	}

	for i := range valid {
		if best == nil || best.Attributes.ExpirationDate.Before(valid[i].Attributes.ExpirationDate) {
			best = &valid[i]
		}
	}

	// everything but the winner goes, duplicates included
	for i := range valid {
		if best != nil && valid[i].ID == best.ID {
			continue
		}
		doomed = append(doomed, valid[i])
	}
	return best, doomed
}

func invalidReason(p asc.Profile, validCertIDs map[string]bool, now time.Time) string {
	if p.IsInvalid() {
		return "portal reports INVALID state"
	}
	expires := p.Attributes.ExpirationDate.Time()
	if expires.Before(now) {
		return "expired"
	}
	if expires.Before(now.Add(expiryWindow)) {
		return "expires within 30 days"
	}
	for _, certID := range p.CertificateIDs() {
		if !validCertIDs[certID] {
			return "references an expired or revoked certificate"
		}
	}
	return ""
}
