package ftp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"goftp.io/server/v2"
	"goftp.io/server/v2/driver/file"

	"bptools/services/ftpd/internal/auth"
	"bptools/services/ftpd/internal/config"
	"bptools/services/ftpd/internal/ingest"
)

func NewServer(cfg config.FTPConfig, authenticator *auth.Authenticator, handler *ingest.Handler, verbose bool, logger *log.Logger) (*Server, error) {
	if authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if handler == nil {
		return nil, errors.New("upload handler is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:     cfg,
		root:    handler.Root(),
		auth:    authenticator,
		handler: handler,
		logger:  logger,
		verbose: verbose,
	}, nil
}

func (s *Server) Run(ctx context.Context, ready *atomic.Bool) error {
	base, err := file.NewDriver(s.root)
	if err != nil {
		return fmt.Errorf("file driver for %s: %w", s.root, err)
	}

	owner := s.auth.Username()
	opts := &server.Options{
		Name:           "bptools",
		Hostname:       s.cfg.Host,
		Port:           s.cfg.Port,
		PassivePorts:   s.cfg.PassivePorts,
		WelcomeMessage: "BellePoule result drop",
		Driver:         newPermDriver(base, owner),
		Auth:           &authHook{auth: s.auth, allowAnonymous: s.cfg.AllowAnonymous, logger: s.logger},
		Perm:           server.NewSimplePerm(owner, owner),
		Logger:         &sessionLogger{logger: s.logger, verbose: s.verbose},
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create ftp server: %w", err)
	}
	srv.RegisterNotifer(newUploadNotifier(ctx, s.root, s.handler, s.logger))

	listener, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("ftp listen: %w", err)
	}
	s.addr.Store(listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	ready.Store(true)
	s.logger.Printf("INFO ftp listening on %s, root %s", listener.Addr(), s.root)

	select {
	case err := <-errCh:
		ready.Store(false)
		if err != nil && !errors.Is(err, server.ErrServerClosed) {
			return fmt.Errorf("ftp serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		ready.Store(false)
		if err := srv.Shutdown(); err != nil {
			s.logger.Printf("WARN ftp shutdown: %v", err)
		}
		<-errCh
		return nil
	}
}

// Addr returns the bound control address once Run is listening.
func (s *Server) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}
