// Package server runs the verification daemon: an SMTP frontend that
// verifies every submitted message and an HTTP API that accepts messages,
// serves recorded verdicts and exposes metrics. Both share one verifier and
// one result store.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	smimecheck "github.com/mseverin/go-smimecheck"
	"github.com/mseverin/go-smimecheck/server/logger"
	"github.com/mseverin/go-smimecheck/server/store"
)

// Server bundles the SMTP and HTTP frontends around one verifier and one
// result store.
type Server struct {
	config   *Config
	verifier *smimecheck.Verifier
	store    store.ResultStore
	smtpSrv  *smtp.Server
	httpSrv  *http.Server
	errCh    chan error
}

// NewServer creates a server instance from the configuration file.
func NewServer(configPath string) (*Server, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	verifier := smimecheck.NewVerifier()
	if cfg.MarginHours > 0 {
		verifier.Margin = time.Duration(cfg.MarginHours) * time.Hour
	}
	verifier.Logger = logger.L()

	var resultStore store.ResultStore
	if cfg.DatabaseURL != "" {
		resultStore, err = store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open result store: %v", err)
		}
	} else {
		resultStore = store.NewInMemoryStore()
	}

	var tlsCert *tls.Certificate
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %v", err)
		}
		tlsCert = &cert
	}

	backend := NewBackend(verifier, resultStore, cfg.AuthUsername, cfg.AuthPassword)
	handler := NewHandler(verifier, resultStore)

	return &Server{
		config:   cfg,
		verifier: verifier,
		store:    resultStore,
		smtpSrv:  buildSMTPServer(cfg, backend, tlsCert),
		httpSrv: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      handler.Router(cfg.AllowedOrigins),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		errCh: make(chan error, 2),
	}, nil
}

// Start runs both frontends and blocks until one of them fails or Stop is
// called. A nil return means an orderly shutdown.
func (s *Server) Start() error {
	go func() {
		logger.L().Info("SMTP frontend starting", zap.String("addr", s.config.SMTPAddr))
		err := s.smtpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, smtp.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			s.errCh <- err
			return
		}
		s.errCh <- nil
	}()

	go func() {
		logger.L().Info("HTTP frontend starting", zap.String("addr", s.config.HTTPAddr))
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
			return
		}
		s.errCh <- nil
	}()

	return <-s.errCh
}

// Stop gracefully shuts down both frontends and closes the store.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := s.smtpSrv.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	logger.Sync()
	return errs
}
