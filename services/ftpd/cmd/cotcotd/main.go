package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"bptools/pkg/bus"
	"bptools/pkg/render"
	gos3 "bptools/pkg/s3"
	"bptools/pkg/telemetry"
	"bptools/services/ftpd/internal/archive"
	"bptools/services/ftpd/internal/auth"
	"bptools/services/ftpd/internal/config"
	"bptools/services/ftpd/internal/credentials"
	"bptools/services/ftpd/internal/events"
	"bptools/services/ftpd/internal/ftp"
	"bptools/services/ftpd/internal/ingest"
	"bptools/services/ftpd/internal/web"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	var (
		createUser bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:           "cotcotd",
		Short:         "FTP drop box filing BellePoule results, with a web browser over the same tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run("cotcotd", createUser, verbose)
		},
	}

	cmd.Flags().BoolVarP(&createUser, "create-user", "c", false, "Create the user account")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbosity")
	return cmd
}

func run(serviceName string, createUser, verbose bool) error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, telemetryMiddleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownTelemetry != nil {
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
			}
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Verbose = cfg.Verbose || verbose
	if cfg.Verbose {
		telemetry.SetDebug(logger, true)
	}

	store, err := credentials.NewStore(cfg.FTP.CredentialsPath)
	if err != nil {
		return err
	}
	if createUser || !store.Exists() {
		password, err := credentials.Prompt(os.Stdin, os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if _, err := store.Save(password); err != nil {
			return err
		}
		logger.Printf("INFO credentials written to %s", store.Path)
	}
	if _, err := store.Load(); err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	authenticator, err := auth.New(cfg.FTP.User, store)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Ingest.RootDir, 0o755); err != nil {
		return fmt.Errorf("create root %s: %w", cfg.Ingest.RootDir, err)
	}

	var (
		sinks    []ingest.Sink
		archiver *archive.Archive
	)
	if cfg.Archive.Bucket != "" {
		s3Client, err := gos3.NewClientFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("init s3 client: %w", err)
		}
		archiver, err = archive.New(cfg.Archive.Bucket, s3Client)
		if err != nil {
			return err
		}
		sinks = append(sinks, archiver)
	}
	if cfg.Events.NATSURL != "" {
		b, err := bus.New(cfg.Events.NATSURL, serviceName)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		sink, err := events.NewSink(b, cfg.Events.Subject)
		if err != nil {
			return err
		}
		if err := b.EnsureStream(ctx, bus.ArtifactsStream, sink.Subject()); err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	handler, err := ingest.NewHandler(cfg.Ingest, logger, sinks...)
	if err != nil {
		return err
	}

	var ftpReady, webReady atomic.Bool
	errCh := make(chan error, 3)

	ftpServer, err := ftp.NewServer(cfg.FTP, authenticator, handler, cfg.Verbose, logger)
	if err != nil {
		return fmt.Errorf("create ftp server: %w", err)
	}
	go func() {
		if err := ftpServer.Run(ctx, &ftpReady); err != nil {
			errCh <- fmt.Errorf("ftp: %w", err)
		}
	}()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ftpReady.Load() && webReady.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "components not ready", http.StatusServiceUnavailable)
	})
	router.Handle("/metrics", promhttp.Handler())

	addr := cfg.Web.Address
	switch {
	case !cfg.Web.Enabled:
		webReady.Store(true)
		addr = cfg.Web.HealthAddress
	case cfg.Web.Mode == config.WebModeCommand:
		launcher, err := web.NewLauncher(cfg.Web.Command, handler.Root(), logger)
		if err != nil {
			return fmt.Errorf("create web launcher: %w", err)
		}
		go func() {
			if err := launcher.Run(ctx, &webReady); err != nil {
				errCh <- fmt.Errorf("web: %w", err)
			}
		}()
		addr = cfg.Web.HealthAddress
	default:
		renderer, err := render.New()
		if err != nil {
			return fmt.Errorf("init renderer: %w", err)
		}
		var presigner web.Presigner
		if archiver != nil {
			presigner = archiver
		}
		if err := web.RegisterHandlers(router, handler.Root(), renderer, presigner, cfg.Archive.PresignTTL, &webReady, logger); err != nil {
			return fmt.Errorf("register web handlers: %w", err)
		}
	}

	return serveHTTP(ctx, serviceName, addr, telemetryMiddleware(router), errCh, logger)
}

func serveHTTP(ctx context.Context, serviceName, addr string, handler http.Handler, errCh chan error, logger *log.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: http shutdown error: %v\n", serviceName, err)
		}
	}()

	logger.Printf("INFO http listening on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
