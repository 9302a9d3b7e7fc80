// Command torcd is the Torc server process: it owns the Storage Layer, the
// core engines (Dependency Resolver, Action Engine, Status Machine, Run
// Controller, Claim Engine), the Orphan Monitor's cron tick, and the REST
// API those engines are exercised through.
//
// Grounded on jsturma-joblet/internal/modes.RunServer's wiring order
// (config -> logging -> storage/adapters -> long-running services ->
// listen -> wait-for-signal -> graceful shutdown), adapted from its
// gRPC+GracefulStop shape to net/http's Shutdown plus golang.org/x/sync/errgroup
// supervising the HTTP listener and its graceful-shutdown goroutine as
// siblings. The Orphan Monitor's cron scheduler is started before the
// errgroup and stopped by a deferred call when main returns.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/auth"
	"github.com/nrel/torc/internal/torc/broadcast"
	"github.com/nrel/torc/internal/torc/claim"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/httpapi"
	"github.com/nrel/torc/internal/torc/orphan"
	"github.com/nrel/torc/internal/torc/runcontroller"
	"github.com/nrel/torc/internal/torc/serverconfig"
	"github.com/nrel/torc/internal/torc/statemachine"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torclog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "torcd:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("torcd", pflag.ContinueOnError)
	serverconfig.RegisterFlags(flags)
	configFile := flags.String("config", "", "path to a YAML/JSON/TOML config file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := serverconfig.Load(flags, *configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := torclog.New(cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	// instanceID identifies this torcd process in logs across restarts; it
	// is not a domain entity id, which stay monotonic int64 per spec §6.
	instanceID := uuid.NewString()
	log = log.WithField("instance_id", instanceID)
	log.Infow("starting torcd",
		"listen_address", cfg.ListenAddress,
		"backend", cfg.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Errorw("error closing storage", "error", closeErr)
		}
	}()

	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}

	resolver := dependency.New()
	actions := action.New()
	events := broadcast.New(cfg.BroadcastCapacity)
	sm := statemachine.New(resolver, actions, events)
	runCtl := runcontroller.New(resolver, actions, sm)
	claimEngine := claim.New(store)

	monitor := orphan.New(store, sm, orphan.PIDLivenessChecker{}, log.SugaredLogger, store.ActiveWorkflowIDs)
	stopMonitor, err := monitor.Start(cfg.OrphanSweepInterval)
	if err != nil {
		return fmt.Errorf("start orphan monitor: %w", err)
	}
	defer stopMonitor()

	srv := httpapi.NewServer(store, resolver, actions, events, sm, runCtl, claimEngine, authenticator, log)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: srv.Router(cfg.AllowedOrigins),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("http server listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("torcd stopped gracefully")
	return nil
}

func openStore(ctx context.Context, cfg serverconfig.Config) (storage.Storage, error) {
	switch cfg.Backend {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("backend=postgres requires --postgres-dsn")
		}
		return storage.OpenPostgres(ctx, cfg.PostgresDSN)
	case "sqlite", "":
		return storage.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown backend %q (want \"sqlite\" or \"postgres\")", cfg.Backend)
	}
}

// buildAuthenticator picks the credential-verification mode spec §6
// describes from what cfg supplies: an htpasswd file if configured,
// otherwise a no-op authenticator that accepts any credential, suitable
// only for local/development use.
func buildAuthenticator(cfg serverconfig.Config) (auth.Authenticator, error) {
	if cfg.HtpasswdFile == "" {
		return allowAllAuthenticator{}, nil
	}
	hashes, err := auth.LoadHtpasswdFile(cfg.HtpasswdFile)
	if err != nil {
		return nil, err
	}
	return auth.NewCaching(auth.NewHtpasswd(hashes), 30*time.Second), nil
}

// allowAllAuthenticator is the zero-configuration default: every credential
// (including an empty one) authenticates as "anonymous". Never set
// --htpasswd-file in a deployment that needs real access control.
type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	return "anonymous", nil
}
