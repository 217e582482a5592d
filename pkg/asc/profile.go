package asc

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

type ProfileType string

const (
	IOS_APP_DEVELOPMENT          ProfileType = "IOS_APP_DEVELOPMENT"
	IOS_APP_STORE                ProfileType = "IOS_APP_STORE"
	IOS_APP_ADHOC                ProfileType = "IOS_APP_ADHOC"
	IOS_APP_INHOUSE              ProfileType = "IOS_APP_INHOUSE"
	MAC_APP_DEVELOPMENT          ProfileType = "MAC_APP_DEVELOPMENT"
	MAC_APP_STORE                ProfileType = "MAC_APP_STORE"
	MAC_APP_DIRECT               ProfileType = "MAC_APP_DIRECT"
	TVOS_APP_DEVELOPMENT         ProfileType = "TVOS_APP_DEVELOPMENT"
	TVOS_APP_STORE               ProfileType = "TVOS_APP_STORE"
	TVOS_APP_ADHOC               ProfileType = "TVOS_APP_ADHOC"
	TVOS_APP_INHOUSE             ProfileType = "TVOS_APP_INHOUSE"
	MAC_CATALYST_APP_DEVELOPMENT ProfileType = "MAC_CATALYST_APP_DEVELOPMENT"
	MAC_CATALYST_APP_STORE       ProfileType = "MAC_CATALYST_APP_STORE"
	MAC_CATALYST_APP_DIRECT      ProfileType = "MAC_CATALYST_APP_DIRECT"
)

// Profile content can lag behind profile creation on the server. These
// bound the download retry loop: exponential backoff from the base
// delay, capped, for at most downloadAttempts fetches.
const (
	downloadAttempts  = 8
	downloadBaseDelay = 2 * time.Second
	downloadMaxDelay  = 30 * time.Second
)

type Profile struct {
	ID         string `json:"id"`
	Type       string `json:"type"` // profiles
	Attributes struct {
		ProfileState   string      `json:"profileState"`
		CreatedDate    Date        `json:"createdDate"`
		ProfileType    ProfileType `json:"profileType"`
		Name           string      `json:"name"`
		ProfileContent []byte      `json:"profileContent"`
		UUID           string      `json:"uuid"`
		Platform       string      `json:"platform"`
		ExpirationDate Date        `json:"expirationDate"`
	} `json:"attributes"`
	Relationships struct {
		BundleID struct {
			Data  Data  `json:"data"`
			Links Links `json:"links"`
		} `json:"bundleId"`
		Certificates struct {
			Meta  Meta   `json:"meta"`
			Data  []Data `json:"data"`
			Links Links  `json:"links"`
		} `json:"certificates"`
		Devices struct {
			Meta  Meta   `json:"meta"`
			Data  []Data `json:"data"`
			Links Links  `json:"links"`
		} `json:"devices"`
	} `json:"relationships"`
	Links Links `json:"links"`
}

func (p Profile) IsInvalid() bool {
	return p.Attributes.ProfileState == "INVALID"
}
func (p Profile) IsExpired() bool {
	return time.Time(p.Attributes.ExpirationDate).Before(time.Now())
}

// BundleIDID is the opaque resource ID of the bundle ID this profile was
// issued for, or empty if the relationship was not included.
func (p Profile) BundleIDID() string {
	return p.Relationships.BundleID.Data.ID
}

// CertificateIDs lists the IDs of the certificates embedded in this
// profile, or nil if the relationship was not included.
func (p Profile) CertificateIDs() []string {
	var ids []string
	for _, d := range p.Relationships.Certificates.Data {
		ids = append(ids, d.ID)
	}
	return ids
}

type ProfileResponse struct {
	Data  Profile `json:"data"`
	Links Links   `json:"links"`
}

type ProfileCreateRequest struct {
	Data struct {
		Type       string `json:"type"` // profiles
		Attributes struct {
			Name        string      `json:"name"`
			ProfileType ProfileType `json:"profileType"`
		} `json:"attributes"`
		Relationships struct {
			BundleID struct {
				Data Data `json:"data"`
			} `json:"bundleId"`
			Certificates struct {
				Data []Data `json:"data"`
			} `json:"certificates"`
			Devices struct {
				Data []Data `json:"data"`
			} `json:"devices,omitempty"`
		} `json:"relationships"`
	} `json:"data"`
}

// FetchProfiles returns the profiles of the given type that belong to the
// bundle ID resource. Not every server deployment accepts a bundle ID
// filter on the profile list, so matching degrades through four tiers:
//
//  1. list with filter[bundleId] and trust the server's filtering
//  2. when the server rejects that filter, list unfiltered with the
//     bundleId relationship included and match on it
//  3. for profiles whose relationship came back empty, fetch each
//     profile's detail and match on the resolved relationship
//  4. if nothing matched at all, match the bundle identifier as a
//     substring of the profile name
//
// Every degradation past tier 1 logs a warning when it engages.
func (c *Client) FetchProfiles(bundleIDID, bundleIdentifier string, ptype ProfileType) ([]Profile, error) {
	filtered := url.Values{}
	filtered.Set("filter[bundleId]", bundleIDID)
	filtered.Set("filter[profileType]", string(ptype))
	filtered.Set("include", "bundleId,certificates")
	profiles, err := fetchPaged[Profile](c, "/profiles", filtered)
	if err == nil {
		return profiles, nil
	}
	if !isFilterRejection(err) {
		return nil, err
	}
	log.WithField("bundle_id", bundleIDID).Warn("server rejected the bundle ID filter, fetching all profiles and filtering client-side")

	params := url.Values{}
	params.Set("filter[profileType]", string(ptype))
	params.Set("include", "bundleId,certificates")
	profiles, err = fetchPaged[Profile](c, "/profiles", params)
	if err != nil {
		return nil, err
	}

	var matched []Profile
	var unresolved []Profile
	for _, p := range profiles {
		switch p.BundleIDID() {
		case bundleIDID:
			matched = append(matched, p)
		case "":
			unresolved = append(unresolved, p)
		}
	}

	if len(unresolved) > 0 {
		log.WithField("count", len(unresolved)).Warn("profile list response omitted bundle ID relationships, fetching profile details")
		for _, p := range unresolved {
			detail, err := c.FetchProfile(p.ID)
			if err != nil {
				return nil, err
			}
			if detail.BundleIDID() == bundleIDID {
				matched = append(matched, *detail)
			}
		}
	}

	if len(matched) == 0 && bundleIdentifier != "" {
		for _, p := range profiles {
			if strings.Contains(p.Attributes.Name, bundleIdentifier) {
				matched = append(matched, p)
			}
		}
		if len(matched) > 0 {
			log.WithFields(log.Fields{
				"bundle_id": bundleIdentifier,
				"count":     len(matched),
			}).Warn("no profile matched by relationship, matched by name instead")
		}
	}

	return matched, nil
}

// FetchProfile returns a single profile with its relationships included.
func (c *Client) FetchProfile(id string) (*Profile, error) {
	params := url.Values{}
	params.Set("include", "bundleId,certificates")
	var resp ProfileResponse
	if err := c.do(http.MethodGet, "/profiles/"+id, params, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching profile %s: %w", id, err)
	}
	return &resp.Data, nil
}

// CreateProfile registers a new provisioning profile for the bundle ID
// with the given certificates embedded. A server complaint about an
// equivalent profile already existing surfaces as ErrDuplicateResource.
func (c *Client) CreateProfile(name string, ptype ProfileType, bundleIDID string, certIDs []string) (*Profile, error) {
	var req ProfileCreateRequest
	req.Data.Type = "profiles"
	req.Data.Attributes.Name = name
	req.Data.Attributes.ProfileType = ptype
	req.Data.Relationships.BundleID.Data = Data{ID: bundleIDID, Type: "bundleIds"}
	for _, id := range certIDs {
		req.Data.Relationships.Certificates.Data = append(req.Data.Relationships.Certificates.Data, Data{
			ID:   id,
			Type: "certificates",
		})
	}

	var resp ProfileResponse
	if err := c.do(http.MethodPost, "/profiles", nil, &req, &resp); err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateResource, err)
		}
		return nil, fmt.Errorf("creating profile %q: %w", name, err)
	}
	return &resp.Data, nil
}

// DeleteProfile removes a provisioning profile.
func (c *Client) DeleteProfile(id string) error {
	if err := c.do(http.MethodDelete, "/profiles/"+id, nil, nil, nil); err != nil {
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	return nil
}

// DownloadProfile fetches a profile's signed content. Freshly created
// profiles can report empty content for a while, so empty or failed
// fetches are retried with exponential backoff.
func (c *Client) DownloadProfile(id string) ([]byte, error) {
	delay := downloadBaseDelay
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		if attempt > 1 {
			log.WithFields(log.Fields{
				"profile": id,
				"attempt": attempt,
				"delay":   delay.String(),
			}).Debug("retrying profile download")
			c.sleep(delay)
			delay *= 2
			if delay > downloadMaxDelay {
				delay = downloadMaxDelay
			}
		}

		profile, err := c.FetchProfile(id)
		if err != nil {
			lastErr = err
			continue
		}
		if len(profile.Attributes.ProfileContent) > 0 {
			return profile.Attributes.ProfileContent, nil
		}
		lastErr = fmt.Errorf("%w: profile %s has no content yet", ErrProtocol, id)
	}
	return nil, fmt.Errorf("downloading profile %s gave up after %d attempts: %w", id, downloadAttempts, lastErr)
}

func isDuplicate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Multiple profiles") || strings.Contains(strings.ToLower(msg), "duplicate")
}

// isFilterRejection recognizes the server refusing a list filter it does
// not support, as opposed to a real failure.
func isFilterRejection(err error) bool {
	if !errors.Is(err, ErrRemoteAPI) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not a valid filter") || strings.Contains(msg, "bundleId")
}
