package server

import (
	"crypto/tls"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	smimecheck "github.com/mseverin/go-smimecheck"
	"github.com/mseverin/go-smimecheck/server/logger"
	"github.com/mseverin/go-smimecheck/server/store"
)

// The Backend implements SMTP server methods. Every accepted message is
// verified and its verdict recorded in the store.
type Backend struct {
	verifier *smimecheck.Verifier
	store    store.ResultStore
	username string
	password string
}

func NewBackend(verifier *smimecheck.Verifier, store store.ResultStore, username, password string) *Backend {
	return &Backend{
		verifier: verifier,
		store:    store,
		username: username,
		password: password,
	}
}

// NewSession is called after client greeting (EHLO, HELO).
func (bkd *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &Session{backend: bkd}, nil
}

// A Session is returned after successful login.
type Session struct {
	backend *Backend
	from    string
	to      []string
	auth    bool
}

// AuthMechanisms returns a slice of available auth mechanisms; only PLAIN
// is supported.
func (s *Session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth is the handler for supported authenticators.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return errors.New("invalid username or password")
		}
		s.auth = true
		return nil
	}), nil
}

func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if !s.auth {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if !s.auth {
		return smtp.ErrAuthRequired
	}
	s.to = append(s.to, to)
	return nil
}

// Data verifies the submitted message and records the verdict. A failure
// outside the verification contract produces no verdict: the message is
// rejected with a transient error instead of being recorded with a guess.
func (s *Session) Data(r io.Reader) error {
	if !s.auth {
		return smtp.ErrAuthRequired
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	smtpMessagesTotal.Inc()

	mailID := extractMailID(raw)
	logger.LogMessageReceived(s.from, s.to, mailID)

	start := time.Now()
	result, err := s.backend.verifier.Verify(raw, mailID)
	if err != nil {
		verificationFailures.Inc()
		logger.LogError("verification aborted", err, map[string]string{"mail_id": mailID})
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 5, 0},
			Message:      "Verification failed, try again later",
		}
	}

	if err := s.backend.store.Save(result); err != nil {
		logger.LogError("failed to record verdict", err, map[string]string{"mail_id": mailID})
		return err
	}

	observeVerification(result.Code.String(), time.Since(start))
	logger.LogVerification(result.MailID, result.Code.String(), result.Signer, result.Message)
	return nil
}

func (s *Session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *Session) Logout() error {
	return nil
}

// extractMailID takes the Message-Id header of the raw message, falling
// back to a fresh UUID when the message has none or does not parse.
func extractMailID(raw []byte) string {
	msg, err := smimecheck.ParseMessage(raw)
	if err != nil || msg.Root == nil {
		return uuid.NewString()
	}
	id := strings.Trim(msg.Root.Header.Get("Message-Id"), "<> \t")
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// buildSMTPServer configures the SMTP frontend. With TLS credentials the
// server offers STARTTLS; without them plain auth is allowed, for
// development setups only.
func buildSMTPServer(cfg *Config, backend *Backend, tlsCert *tls.Certificate) *smtp.Server {
	s := smtp.NewServer(backend)
	s.Addr = cfg.SMTPAddr
	s.Domain = cfg.Domain
	if tlsCert != nil {
		s.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*tlsCert},
			MinVersion:   tls.VersionTLS12,
		}
	} else {
		s.AllowInsecureAuth = true
	}
	return s
}
