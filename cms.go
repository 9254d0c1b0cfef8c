package smimecheck

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"strings"
	"time"

	cms "github.com/github/smimesign/ietf-cms"
	"go.mozilla.org/pkcs7"
)

// oidSignedData is the CMS content type id-signedData (RFC 5652).
var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

// contentInfo mirrors the outermost CMS ContentInfo layer, used only to
// cross-check the declared content type after BER decoding succeeded.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// SignedDataEnvelope is a decoded CMS SignedData blob: an ordered
// certificate sequence, the declared digest algorithms, and a detached
// verification operation. It is owned by a single verification call.
type SignedDataEnvelope struct {
	p7 *pkcs7.PKCS7
	sd *cms.SignedData
}

// decodeSignedData decodes the signature node's binary content into a
// SignedDataEnvelope. Every decode or structural failure is classified as a
// malformed signature: an envelope that claimed to be signed but carries
// undecodable bytes is suspicious, not inconclusive. The blob is decoded
// twice: pkcs7 supplies the certificate surface, ietf-cms the detached
// verification.
func decodeSignedData(sig *Node) (*SignedDataEnvelope, *Error) {
	data := decodeBase64IfNeeded(sig.Body)
	if len(data) == 0 {
		return nil, newError(KindMalformedSignature, msgInvalidSignature)
	}

	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, wrapError(KindMalformedSignature, msgInvalidSignature, err)
	}

	// pkcs7.Parse accepts other CMS content types (enveloped, encrypted).
	// Re-read the ContentInfo header to insist on id-signedData. The check
	// is skipped for indefinite-length BER, which the stdlib decoder cannot
	// walk; those are caught below, since ietf-cms refuses any content type
	// other than id-signedData.
	var ci contentInfo
	if _, err := asn1.Unmarshal(data, &ci); err == nil {
		if !ci.ContentType.Equal(oidSignedData) {
			return nil, newError(KindMalformedSignature, msgInvalidSignature)
		}
	}

	sd, err := cms.ParseSignedData(data)
	if err != nil {
		return nil, wrapError(KindMalformedSignature, msgInvalidSignature, err)
	}

	return &SignedDataEnvelope{p7: p7, sd: sd}, nil
}

// Certificates returns the embedded certificates in wire order.
func (e *SignedDataEnvelope) Certificates() []*x509.Certificate {
	return e.p7.Certificates
}

// FirstCertificate returns the first embedded certificate. The identity
// check and the reported signer are both taken from it.
func (e *SignedDataEnvelope) FirstCertificate() (*x509.Certificate, bool) {
	if len(e.p7.Certificates) == 0 {
		return nil, false
	}
	return e.p7.Certificates[0], true
}

// DigestAlgorithms returns the digest algorithm identifiers declared by the
// signers.
func (e *SignedDataEnvelope) DigestAlgorithms() []asn1.ObjectIdentifier {
	oids := make([]asn1.ObjectIdentifier, 0, len(e.p7.Signers))
	for _, s := range e.p7.Signers {
		oids = append(oids, s.DigestAlgorithm.Algorithm)
	}
	return oids
}

// VerifyDetached checks the signature over content, which must already be
// CRLF-canonicalized. Only the cryptographic question is decided here: the
// embedded certificates serve as trust anchors and the verification time is
// clamped into the signer's validity window, so temporal policy stays with
// checkCertificateValidity and chain trust with Diagnose. An explicit
// cryptographic mismatch is distinguished from an inability to evaluate:
// the former is evidence the content or signature was tampered with, the
// latter only means the answer is unknown.
func (e *SignedDataEnvelope) VerifyDetached(content []byte, now time.Time) *Error {
	roots := x509.NewCertPool()
	for _, cert := range e.p7.Certificates {
		roots.AddCert(cert)
	}

	_, err := e.sd.VerifyDetached(content, x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: e.verificationTime(now),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err == nil {
		return nil
	}
	if isSignatureMismatch(err) {
		return wrapError(KindSignatureMismatch, msgSignatureMismatch, err)
	}
	return wrapError(KindIndeterminate, msgUnknownError, err)
}

// verificationTime clamps now into the signer certificate's validity
// window. Temporal policy has already ruled by this stage, so the clamped
// time keeps the x509 chain step from rejecting a certificate the margin
// admitted.
func (e *SignedDataEnvelope) verificationTime(now time.Time) time.Time {
	cert := e.p7.GetOnlySigner()
	if cert == nil {
		var ok bool
		if cert, ok = e.FirstCertificate(); !ok {
			return now
		}
	}
	if now.Before(cert.NotBefore) {
		return cert.NotBefore
	}
	if now.After(cert.NotAfter) {
		return cert.NotAfter
	}
	return now
}

// isSignatureMismatch reports whether err is a definitive "signature does
// not match content" outcome rather than an evaluation failure.
func isSignatureMismatch(err error) bool {
	if errors.Is(err, rsa.ErrVerification) {
		return true
	}
	// A digest disagreement is reported with a fixed message; crypto/x509
	// reports ECDSA and Ed25519 mismatches as bare strings.
	msg := err.Error()
	return strings.Contains(msg, "invalid message digest") ||
		strings.Contains(msg, "verification failure")
}
