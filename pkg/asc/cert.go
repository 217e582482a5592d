package asc

import (
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type CertificateType string

const (
	CT_DEVELOPMENT      CertificateType = "DEVELOPMENT"
	CT_DISTRIBUTION     CertificateType = "DISTRIBUTION"
	CT_IOS_DEVELOPMENT  CertificateType = "IOS_DEVELOPMENT"
	CT_IOS_DISTRIBUTION CertificateType = "IOS_DISTRIBUTION"
)

type Certificate struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		CertificateContent []byte          `json:"certificateContent"`
		DisplayName        string          `json:"displayName"`
		ExpirationDate     Date            `json:"expirationDate"`
		Name               string          `json:"name"`
		Platform           string          `json:"platform"`
		SerialNumber       string          `json:"serialNumber"`
		CertificateType    CertificateType `json:"certificateType"`
	} `json:"attributes"`
	Links Links `json:"links"`
}

func (c Certificate) IsExpired() bool {
	return time.Time(c.Attributes.ExpirationDate).Before(time.Now())
}

// Fingerprint is the uppercase hex SHA-1 of the DER certificate content,
// the identity used to match this certificate across stores.
func (c Certificate) Fingerprint() string {
	if len(c.Attributes.CertificateContent) == 0 {
		return ""
	}
	return fmt.Sprintf("%X", sha1.Sum(c.Attributes.CertificateContent))
}

type CertificateResponse struct {
	Data  Certificate `json:"data"`
	Links Links       `json:"links"`
}

type CertificateCreateRequest struct {
	Data struct {
		Type       string `json:"type"` // certificates
		Attributes struct {
			CertificateType CertificateType `json:"certificateType"`
			CSRContent      string          `json:"csrContent"`
		} `json:"attributes"`
	} `json:"data"`
}

// FetchCertificates returns all certificates of the given types,
// following pagination to the end.
func (c *Client) FetchCertificates(types ...CertificateType) ([]Certificate, error) {
	params := url.Values{}
	if len(types) > 0 {
		var strs []string
		for _, t := range types {
			strs = append(strs, string(t))
		}
		params.Set("filter[certificateType]", strings.Join(strs, ","))
	}
	return fetchPaged[Certificate](c, "/certificates", params)
}

// CreateCertificate submits a PEM certificate signing request and returns
// the newly issued certificate.
func (c *Client) CreateCertificate(csrPEM string, ctype CertificateType) (*Certificate, error) {
	var req CertificateCreateRequest
	req.Data.Type = "certificates"
	req.Data.Attributes.CertificateType = ctype
	req.Data.Attributes.CSRContent = csrPEM

	var resp CertificateResponse
	if err := c.do(http.MethodPost, "/certificates", nil, &req, &resp); err != nil {
		return nil, fmt.Errorf("creating %s certificate: %w", ctype, err)
	}
	return &resp.Data, nil
}

// DeleteCertificate revokes a certificate.
func (c *Client) DeleteCertificate(id string) error {
	if err := c.do(http.MethodDelete, "/certificates/"+id, nil, nil, nil); err != nil {
		return fmt.Errorf("deleting certificate %s: %w", id, err)
	}
	return nil
}
