package smimecheck

import (
	"crypto/x509"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// DefaultValidityMargin widens every certificate validity window on both
// sides to absorb clock skew between the signer and the verifying host.
const DefaultValidityMargin = 12 * time.Hour

// checkCertificateValidity verifies that now falls inside
// [notBefore-margin, notAfter+margin] for every certificate in the
// envelope. One certificate outside its window rejects the whole envelope:
// expired or premature certificates cannot be checked for revocation, so
// the engine refuses to trust them rather than attempt partial validation.
func checkCertificateValidity(certs []*x509.Certificate, now time.Time, margin time.Duration) *Error {
	var cause error
	for _, cert := range certs {
		notBefore := cert.NotBefore.Add(-margin)
		notAfter := cert.NotAfter.Add(margin)
		if now.Before(notBefore) {
			cause = multierr.Append(cause, fmt.Errorf(
				"certificate %q not valid until %s", cert.Subject.CommonName, cert.NotBefore.UTC().Format(time.RFC3339)))
		}
		if now.After(notAfter) {
			cause = multierr.Append(cause, fmt.Errorf(
				"certificate %q expired at %s", cert.Subject.CommonName, cert.NotAfter.UTC().Format(time.RFC3339)))
		}
	}
	if cause != nil {
		return wrapError(KindCertificateExpired, msgCertificateExpired, cause)
	}
	return nil
}
