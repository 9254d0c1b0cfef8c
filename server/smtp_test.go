package server

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	smimecheck "github.com/mseverin/go-smimecheck"
	"github.com/mseverin/go-smimecheck/server/store"
)

func createServerTestCert(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   "Test Signer",
			Organization: []string{"Test Company"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		BasicConstraintsValid: true,
		EmailAddresses:        []string{"sender@example.com"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert, key
}

// signedServerMessage builds a signed submission carrying a Message-Id so
// tests can look the verdict up in the store.
func signedServerMessage(t *testing.T, mailID, body string) []byte {
	t.Helper()

	cert, key := createServerTestCert(t)
	signer := &smimecheck.Signer{Cert: cert, Key: key}
	raw, err := signer.CreateSignedMessage("sender@example.com", "recipient@example.com", "Signed test message", smimecheck.TextPart(body))
	if err != nil {
		t.Fatalf("Failed to create signed message: %v", err)
	}
	return append([]byte("Message-Id: <"+mailID+">\r\n"), raw...)
}

func newTestSession(t *testing.T) (*Session, store.ResultStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	bkd := NewBackend(smimecheck.NewVerifier(), st, "checker", "secret")
	sess, err := bkd.NewSession(nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sess.(*Session), st
}

func TestSession_AuthMechanisms(t *testing.T) {
	s, _ := newTestSession(t)
	mechs := s.AuthMechanisms()
	if len(mechs) != 1 || mechs[0] != sasl.Plain {
		t.Errorf("AuthMechanisms = %v, want [PLAIN]", mechs)
	}
}

func TestSession_Auth(t *testing.T) {
	s, _ := newTestSession(t)

	srv, err := s.Auth(sasl.Plain)
	if err != nil {
		t.Fatalf("Auth failed: %v", err)
	}
	_, done, err := srv.Next([]byte("\x00checker\x00secret"))
	if err != nil {
		t.Fatalf("PLAIN exchange failed: %v", err)
	}
	if !done {
		t.Error("PLAIN exchange not done after initial response")
	}
	if !s.auth {
		t.Error("session not marked authenticated after valid credentials")
	}
}

func TestSession_Auth_WrongPassword(t *testing.T) {
	s, _ := newTestSession(t)

	srv, err := s.Auth(sasl.Plain)
	if err != nil {
		t.Fatalf("Auth failed: %v", err)
	}
	if _, _, err := srv.Next([]byte("\x00checker\x00wrong")); err == nil {
		t.Error("PLAIN exchange accepted wrong credentials")
	}
	if s.auth {
		t.Error("session marked authenticated after invalid credentials")
	}
}

func TestSession_RequiresAuth(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Mail("sender@example.com", nil); err != smtp.ErrAuthRequired {
		t.Errorf("Mail before auth = %v, want ErrAuthRequired", err)
	}
	if err := s.Rcpt("recipient@example.com", nil); err != smtp.ErrAuthRequired {
		t.Errorf("Rcpt before auth = %v, want ErrAuthRequired", err)
	}
	if err := s.Data(strings.NewReader("ignored")); err != smtp.ErrAuthRequired {
		t.Errorf("Data before auth = %v, want ErrAuthRequired", err)
	}
}

func TestSession_Data_ValidMessage(t *testing.T) {
	s, st := newTestSession(t)
	s.auth = true

	if err := s.Mail("sender@example.com", nil); err != nil {
		t.Fatalf("Mail failed: %v", err)
	}
	if err := s.Rcpt("recipient@example.com", nil); err != nil {
		t.Fatalf("Rcpt failed: %v", err)
	}

	raw := signedServerMessage(t, "msg-1@example.com", "Hello from the SMTP frontend")
	if err := s.Data(bytes.NewReader(raw)); err != nil {
		t.Fatalf("Data failed: %v", err)
	}

	result, err := st.Get("msg-1@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result == nil {
		t.Fatal("no verdict recorded for the submitted message")
	}
	if result.Code != smimecheck.VerificationOK {
		t.Errorf("Code = %s, want VERIFICATION_OK (%s)", result.Code, result.Message)
	}
	if result.Signer != "sender@example.com" {
		t.Errorf("Signer = %q, want sender@example.com", result.Signer)
	}
}

func TestSession_Data_UnsignedMessage(t *testing.T) {
	s, st := newTestSession(t)
	s.auth = true

	raw := []byte("Message-Id: <msg-2@example.com>\r\n" +
		"From: sender@example.com\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"No signature here.\r\n")
	if err := s.Data(bytes.NewReader(raw)); err != nil {
		t.Fatalf("Data failed: %v", err)
	}

	result, err := st.Get("msg-2@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result == nil {
		t.Fatal("no verdict recorded for the unsigned message")
	}
	if result.Code != smimecheck.CannotVerify {
		t.Errorf("Code = %s, want CANNOT_VERIFY", result.Code)
	}
	if result.Success {
		t.Error("unsigned message reported as success")
	}
}

func TestSession_Data_GeneratesMailID(t *testing.T) {
	s, st := newTestSession(t)
	s.auth = true

	raw := []byte("From: sender@example.com\r\n\r\nNo Message-Id.\r\n")
	if err := s.Data(bytes.NewReader(raw)); err != nil {
		t.Fatalf("Data failed: %v", err)
	}

	results, err := st.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("List returned %d results, want 1", len(results))
	}
	if results[0].MailID == "" {
		t.Error("verdict recorded with an empty mail id")
	}
}

func TestSession_Reset(t *testing.T) {
	s, _ := newTestSession(t)
	s.auth = true
	s.Mail("sender@example.com", nil)
	s.Rcpt("recipient@example.com", nil)

	s.Reset()

	if s.from != "" || s.to != nil {
		t.Errorf("Reset left from=%q to=%v", s.from, s.to)
	}
	if !s.auth {
		t.Error("Reset dropped authentication state")
	}
	if err := s.Logout(); err != nil {
		t.Errorf("Logout failed: %v", err)
	}
}

func TestExtractMailID(t *testing.T) {
	raw := []byte("Message-Id: <abc-123@example.com>\r\nFrom: a@b\r\n\r\nbody\r\n")
	if got := extractMailID(raw); got != "abc-123@example.com" {
		t.Errorf("extractMailID = %q, want abc-123@example.com", got)
	}

	noID := []byte("From: a@b\r\n\r\nbody\r\n")
	got := extractMailID(noID)
	if len(got) != 36 {
		t.Errorf("extractMailID without Message-Id = %q, want a generated UUID", got)
	}

	if extractMailID(nil) == "" {
		t.Error("extractMailID returned an empty id for empty input")
	}
}

func TestBuildSMTPServer(t *testing.T) {
	cfg := &Config{Domain: "smime.example.com", SMTPAddr: ":1025"}
	bkd := NewBackend(smimecheck.NewVerifier(), store.NewInMemoryStore(), "checker", "secret")

	srv := buildSMTPServer(cfg, bkd, nil)
	if srv.Addr != ":1025" || srv.Domain != "smime.example.com" {
		t.Errorf("server addr=%q domain=%q", srv.Addr, srv.Domain)
	}
	if !srv.AllowInsecureAuth {
		t.Error("plain auth not allowed without TLS credentials")
	}
	if srv.TLSConfig != nil {
		t.Error("TLSConfig set without credentials")
	}

	cert, key := createServerTestCert(t)
	tlsCert := tls.Certificate{Certificate: [][]byte{cert.Raw}, PrivateKey: key}
	srv = buildSMTPServer(cfg, bkd, &tlsCert)
	if srv.TLSConfig == nil || len(srv.TLSConfig.Certificates) != 1 {
		t.Fatal("TLSConfig missing the provided certificate")
	}
	if srv.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", srv.TLSConfig.MinVersion)
	}
	if srv.AllowInsecureAuth {
		t.Error("plain auth allowed despite TLS credentials")
	}
}
