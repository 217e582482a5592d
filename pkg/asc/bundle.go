package asc

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

type BundleIDPlatform string

const (
	IOS       BundleIDPlatform = "IOS"
	MAC_OS    BundleIDPlatform = "MAC_OS"
	UNIVERSAL BundleIDPlatform = "UNIVERSAL"
)

type BundleID struct {
	ID         string `json:"id"`
	Type       string `json:"type"` // bundleIds
	Attributes struct {
		Identifier string           `json:"identifier"`
		Name       string           `json:"name"`
		Platform   BundleIDPlatform `json:"platform"`
		SeedID     string           `json:"seedId"`
	} `json:"attributes"`
	Links Links `json:"links"`
}

type BundleIDResponse struct {
	Data  BundleID `json:"data"`
	Links Links    `json:"links"`
}

type BundleIDCreateRequest struct {
	Data struct {
		Type       string `json:"type"` // bundleIds
		Attributes struct {
			Identifier string           `json:"identifier"`
			Name       string           `json:"name"`
			Platform   BundleIDPlatform `json:"platform"`
		} `json:"attributes"`
	} `json:"data"`
}

var bundleIDNameRe = regexp.MustCompile(`[^0-9A-Za-z]+`)

// HumanizeBundleID turns a reverse-DNS app identifier into a name the
// portal will accept for a bundle ID registration, which rejects most
// punctuation.
func HumanizeBundleID(identifier string) string {
	return strings.TrimSpace(bundleIDNameRe.ReplaceAllString(identifier, " "))
}

// FetchBundleIDs returns registered bundle IDs, optionally filtered to an
// exact app identifier.
func (c *Client) FetchBundleIDs(identifier string) ([]BundleID, error) {
	params := url.Values{}
	if identifier != "" {
		params.Set("filter[identifier]", identifier)
	}
	ids, err := fetchPaged[BundleID](c, "/bundleIds", params)
	if err != nil {
		return nil, err
	}
	if identifier == "" {
		return ids, nil
	}
	// The identifier filter matches substrings server-side.
	var exact []BundleID
	for _, b := range ids {
		if b.Attributes.Identifier == identifier {
			exact = append(exact, b)
		}
	}
	return exact, nil
}

// CreateBundleID registers a new bundle ID. An empty name is derived from
// the identifier.
func (c *Client) CreateBundleID(identifier, name string, platform BundleIDPlatform) (*BundleID, error) {
	if name == "" {
		name = HumanizeBundleID(identifier)
	}
	var req BundleIDCreateRequest
	req.Data.Type = "bundleIds"
	req.Data.Attributes.Identifier = identifier
	req.Data.Attributes.Name = name
	req.Data.Attributes.Platform = platform

	var resp BundleIDResponse
	if err := c.do(http.MethodPost, "/bundleIds", nil, &req, &resp); err != nil {
		return nil, fmt.Errorf("registering bundle ID %q: %w", identifier, err)
	}
	return &resp.Data, nil
}

// FetchTeamID derives the developer team ID from the seedId of a
// registered bundle ID, preferring one matching the given identifier.
func (c *Client) FetchTeamID(identifier string) (string, error) {
	ids, err := c.FetchBundleIDs(identifier)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 && identifier != "" {
		if ids, err = c.FetchBundleIDs(""); err != nil {
			return "", err
		}
	}
	for _, b := range ids {
		if b.Attributes.SeedID != "" {
			return b.Attributes.SeedID, nil
		}
	}
	return "", fmt.Errorf("%w: no registered bundle ID carries a team seed ID", ErrProtocol)
}
