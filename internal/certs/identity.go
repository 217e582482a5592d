package certs

import (
	"crypto/x509"
	"encoding/asn1"
)

// Apple marks the kind of signing identity a certificate represents with
// a leaf OID extension.
var (
	OIDIosDevelopmentLeaf  asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 2}
	OIDIosDistributionLeaf asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 4}
	OIDMacDevelopmentLeaf  asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 12}
	OIDDeveloperIDLeaf     asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 1, 13}
	OIDSoftwareSigningLeaf asn1.ObjectIdentifier = []int{1, 2, 840, 113635, 100, 6, 22}
)

// IdentityKind classifies a parsed certificate by its Apple leaf OID.
func IdentityKind(cert *x509.Certificate) string {
	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(OIDIosDistributionLeaf):
			return "Distribution"
		case ext.Id.Equal(OIDIosDevelopmentLeaf):
			return "Development"
		case ext.Id.Equal(OIDMacDevelopmentLeaf):
			return "Mac Development"
		case ext.Id.Equal(OIDDeveloperIDLeaf):
			return "Developer ID"
		case ext.Id.Equal(OIDSoftwareSigningLeaf):
			return "Software Signing"
		}
	}
	return "Unknown"
}
