package smimecheck

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mozilla.org/pkcs7"
)

// Signer produces S/MIME signed messages. It is the counterpart of the
// Verifier and is used by the command line tooling and the test fixtures.
type Signer struct {
	Cert *x509.Certificate
	Key  crypto.PrivateKey
}

// Sign computes a detached CMS SignedData blob over content. The caller is
// responsible for canonicalizing content first; the signature covers the
// bytes exactly as given.
func (s *Signer) Sign(content []byte) ([]byte, error) {
	signedData, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("failed to create signed data: %v", err)
	}
	signedData.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := signedData.AddSigner(s.Cert, s.Key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("failed to add signer: %v", err)
	}
	signedData.Detach()

	signedBytes, err := signedData.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to finish signature: %v", err)
	}
	return signedBytes, nil
}

// CreateSignedMessage builds a complete multipart/signed message around
// part, which must be a full MIME part (headers, blank line, body). The
// part is CRLF-canonicalized before signing so the message verifies
// regardless of how the caller terminated its lines.
func (s *Signer) CreateSignedMessage(from, to, subject string, part []byte) ([]byte, error) {
	canonical := canonicalizeCRLF(part)

	der, err := s.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %v", err)
	}

	boundary := fmt.Sprintf("----=_NextPart_%d", time.Now().Unix())

	var result strings.Builder
	result.WriteString("From: " + from + "\r\n")
	result.WriteString("To: " + to + "\r\n")
	result.WriteString("Subject: " + subject + "\r\n")
	result.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	result.WriteString("MIME-Version: 1.0\r\n")
	result.WriteString(fmt.Sprintf("Content-Type: multipart/signed; protocol=\"application/pkcs7-signature\"; micalg=sha-256; boundary=\"%s\"\r\n", boundary))
	result.WriteString("\r\n")
	result.WriteString("This is an S/MIME signed message\r\n")
	result.WriteString("\r\n")

	result.WriteString("--" + boundary + "\r\n")
	result.Write(canonical)
	result.WriteString("\r\n")

	result.WriteString("--" + boundary + "\r\n")
	result.WriteString("Content-Type: application/pkcs7-signature; name=\"smime.p7s\"\r\n")
	result.WriteString("Content-Transfer-Encoding: base64\r\n")
	result.WriteString("Content-Disposition: attachment; filename=\"smime.p7s\"\r\n")
	result.WriteString("\r\n")
	result.WriteString(formatBase64(base64.StdEncoding.EncodeToString(der), 76))
	result.WriteString("\r\n")
	result.WriteString("--" + boundary + "--\r\n")

	return []byte(result.String()), nil
}

// TextPart wraps a plain-text body into a minimal MIME part suitable for
// CreateSignedMessage.
func TextPart(body string) []byte {
	return []byte("Content-Type: text/plain; charset=us-ascii\r\nContent-Transfer-Encoding: 7bit\r\n\r\n" + body)
}

// LoadCredentials reads a PEM certificate and private key pair from disk.
// PKCS#8 keys are tried first, then PKCS#1.
func LoadCredentials(certPath, keyPath string) (*x509.Certificate, crypto.PrivateKey, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read certificate")
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read private key")
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, nil, errors.New("no certificate block in PEM input")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse certificate")
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, errors.New("no key block in PEM input")
	}
	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		key, err = x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse private key")
	}

	return cert, key, nil
}
