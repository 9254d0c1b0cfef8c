package smimecheck

import (
	"bytes"
	"crypto/x509"

	"github.com/certifi/gocertifi"
	"golang.org/x/crypto/ocsp"
)

// Diagnosis carries advisory information about the certificates of a signed
// message: where revocation could be checked, a ready-made OCSP request,
// and whether the embedded chain anchors to the Mozilla CA bundle. None of
// this influences the verdict; Verify never consults it.
type Diagnosis struct {
	// Signer is the email extracted from the first certificate.
	Signer string `json:"signer"`

	// OCSPServers lists the responder URLs the certificates advertise.
	OCSPServers []string `json:"ocsp_servers"`

	// OCSPRequest is a DER-encoded OCSP request for the first certificate,
	// nil when none could be built.
	OCSPRequest []byte `json:"ocsp_request,omitempty"`

	// ChainTrusted reports whether the first certificate chains to the
	// Mozilla CA bundle using only the certificates embedded in the
	// message.
	ChainTrusted bool `json:"chain_trusted"`

	// ChainDetail explains a failed chain check.
	ChainDetail string `json:"chain_detail,omitempty"`
}

// BuildOCSPRequest constructs a DER-encoded OCSP request for cert against
// its issuer. It is a pure function: every call allocates a fresh buffer,
// so concurrent verifications can never observe each other's requests.
func BuildOCSPRequest(cert, issuer *x509.Certificate) ([]byte, error) {
	return ocsp.CreateRequest(cert, issuer, nil)
}

// Diagnose decodes the signature of rawMessage and reports advisory
// certificate information. It shares no state with Verify and returns an
// error when the message does not carry a decodable signature.
func (v *Verifier) Diagnose(rawMessage []byte) (*Diagnosis, error) {
	msg, err := ParseMessage(rawMessage)
	if err != nil {
		return nil, err
	}
	if !validEnvelope(msg) {
		return nil, newError(KindStructuralMismatch, msgNotSigned)
	}
	sig, _ := msg.Node(2)
	env, verr := decodeSignedData(sig)
	if verr != nil {
		return nil, verr
	}

	cert, ok := env.FirstCertificate()
	if !ok {
		return nil, newError(KindIndeterminate, msgUnknownError)
	}

	d := &Diagnosis{Signer: certificateEmail(cert)}
	for _, c := range env.Certificates() {
		d.OCSPServers = append(d.OCSPServers, c.OCSPServer...)
	}

	if req, err := BuildOCSPRequest(cert, findIssuer(cert, env.Certificates())); err == nil {
		d.OCSPRequest = req
	}

	roots, err := gocertifi.CACerts()
	if err != nil {
		return nil, err
	}
	intermediates := x509.NewCertPool()
	for _, c := range env.Certificates() {
		if c != cert {
			intermediates.AddCert(c)
		}
	}
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   v.clock(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
	})
	if err != nil {
		d.ChainDetail = err.Error()
	} else {
		d.ChainTrusted = true
	}

	return d, nil
}

// findIssuer locates the issuer of cert among certs, falling back to cert
// itself for self-signed and orphaned leaves.
func findIssuer(cert *x509.Certificate, certs []*x509.Certificate) *x509.Certificate {
	for _, c := range certs {
		if c != cert && bytes.Equal(cert.RawIssuer, c.RawSubject) {
			return c
		}
	}
	return cert
}
