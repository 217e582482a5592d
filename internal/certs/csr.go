// Package certs manages distribution signing certificates across the
// developer portal, the login keychain and the encrypted on-disk cache.
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

const rsaKeySize = 2048

// csrCommonName is the subject Apple shows in the portal for submitted
// signing requests.
const csrCommonName = "Apple Distribution"

// P12Password protects exported PKCS#12 bundles. The bundles are always
// encrypted again before they touch disk, so this is an exchange format
// constant, not a secret.
const P12Password = "fastlane"

// SigningRequest is a freshly generated private key with its CSR, ready
// to submit to the portal.
type SigningRequest struct {
	Key    *rsa.PrivateKey
	CSRPEM string
}

// NewSigningRequest generates an RSA key pair and a certificate signing
// request for a distribution certificate.
func NewSigningRequest() (*SigningRequest, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeySize)
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}

	tmpl := x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: csrCommonName},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &tmpl, key)
	if err != nil {
		return nil, fmt.Errorf("creating CSR: %w", err)
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
	return &SigningRequest{Key: key, CSRPEM: string(csrPEM)}, nil
}

// BuildP12 bundles the issued DER certificate with its private key into
// a PKCS#12 archive.
func BuildP12(certDER []byte, key *rsa.PrivateKey) ([]byte, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parsing issued certificate: %w", err)
	}
	p12, err := pkcs12.Modern.Encode(key, cert, nil, P12Password)
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#12 bundle: %w", err)
	}
	return p12, nil
}

// ParseP12 opens a PKCS#12 bundle and returns the leaf certificate.
func ParseP12(p12 []byte) (*x509.Certificate, error) {
	_, cert, err := pkcs12.Decode(p12, P12Password)
	if err != nil {
		return nil, fmt.Errorf("decoding PKCS#12 bundle: %w", err)
	}
	return cert, nil
}
