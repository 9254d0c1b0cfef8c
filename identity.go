package smimecheck

import (
	"crypto/x509"
	"encoding/asn1"
)

// oidEmailAddress is the PKCS#9 emailAddress attribute type
// (1.2.840.113549.1.9.1) found in legacy certificate subjects.
var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// certificateEmail extracts the signer's email address from a certificate:
// the subject emailAddress attribute when present, otherwise the first
// rfc822Name from the subject alternative names, where modern certificates
// carry it. Empty when the certificate names no mailbox.
func certificateEmail(cert *x509.Certificate) string {
	for _, attr := range cert.Subject.Names {
		if !attr.Type.Equal(oidEmailAddress) {
			continue
		}
		if v, ok := attr.Value.(string); ok && v != "" {
			return v
		}
	}
	if len(cert.EmailAddresses) > 0 {
		return cert.EmailAddresses[0]
	}
	return ""
}

// checkIdentity compares the certificate email with the first address in
// the message's From header. The comparison is exact and case-sensitive:
// a validly signed message replayed under a different From header is a
// spoofing attempt, and no normalization is applied that could mask one.
func checkIdentity(certEmail, fromAddress string) *Error {
	if certEmail == "" || fromAddress == "" || certEmail != fromAddress {
		return newError(KindIdentityMismatch, msgIdentityMismatch)
	}
	return nil
}
