package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/peterje/pocketdev/internal/config"
	"github.com/peterje/pocketdev/internal/db"
	"github.com/peterje/pocketdev/internal/events"
	"github.com/peterje/pocketdev/internal/gateway"
	"github.com/peterje/pocketdev/internal/git"
	"github.com/peterje/pocketdev/internal/logging"
	"github.com/peterje/pocketdev/internal/metrics"
	"github.com/peterje/pocketdev/internal/preflight"
	"github.com/peterje/pocketdev/internal/server"
	"github.com/peterje/pocketdev/internal/store"
	"github.com/peterje/pocketdev/internal/terminal"
	"github.com/peterje/pocketdev/internal/tunnel"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch: "pocketdev gateway" runs the public gateway.
	if len(os.Args) > 1 && os.Args[1] == "gateway" {
		if err := runGateway(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pocketdev: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("pocketdev", flag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	checks := preflight.CheckAll(cfg.Terminal.Shell, logger.Named("preflight"))
	if !checks.Git {
		return errors.New("git is required; install git and try again")
	}
	if !checks.Shell {
		return fmt.Errorf("shell %s not found", cfg.Terminal.Shell)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir, err := cfg.DataDir()
	if err != nil {
		return err
	}
	database, err := db.Open(dataDir)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	st := store.New(database, logger.Named("store"))
	if n, err := st.MarkStaleSessions(ctx); err != nil {
		logger.Warn("clean up stale sessions", zap.Error(err))
	} else if n > 0 {
		logger.Info("cleaned up stale sessions", zap.Int64("count", n))
	}

	m := metrics.New()

	broker := events.NewBroker(cfg.Terminal.ReplayLines, logger.Named("events"))
	broker.OnDrop = m.EventDropped

	registry := terminal.NewRegistry(terminal.Options{
		Shell:        cfg.Terminal.Shell,
		JoinTimeout:  cfg.Terminal.JoinTimeout,
		MaxLineBytes: cfg.Terminal.MaxLineBytes,
		MaxSessions:  cfg.Terminal.MaxSessions,
		TTY:          cfg.Terminal.TTY,
	}, broker, logger.Named("terminal"), terminal.Hooks{
		OnStart:  st.SessionStarted,
		OnExit:   st.SessionEnded,
		OnRemove: broker.Forget,
	})
	m.RegisterSessions(registry)

	executor := terminal.NewExecutor(cfg.Terminal.Shell, logger.Named("exec"))
	executor.OnFinish = m.ObserveCommand

	gitSvc := git.New(logger.Named("git"))
	gitSvc.Observe = m.ObserveGit

	var tunnelUp func() bool
	if cfg.Tunnel.GatewayURL != "" {
		client := tunnel.NewClient(cfg.Tunnel.GatewayURL, cfg.Tunnel.Secret, localAddr(cfg), logger.Named("tunnel"))
		go client.Run(ctx)
		tunnelUp = client.Connected
	}

	srv := server.New(server.Deps{
		Sessions:      registry,
		Events:        broker,
		Executor:      executor,
		Git:           gitSvc,
		Store:         st,
		Metrics:       m,
		Preflight:     checks,
		RateLimit:     cfg.RateLimit,
		WatchDebounce: cfg.Terminal.WatchDebounce,
		TunnelUp:      tunnelUp,
		Logger:        logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", httpSrv.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		registry.StopAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// Sessions do not outlive the server; stopping them also closes any
	// WebSocket streams still attached.
	registry.StopAll()
	logger.Info("server stopped",
		zap.Int64("sessions_created", registry.Created()),
		zap.Int64("pumps_abandoned", registry.Abandoned()),
	)
	return nil
}

func runGateway(args []string) error {
	cfg, err := config.LoadGateway(args)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return gateway.Run(ctx, cfg, logger.Named("gateway"))
}

// localAddr is where tunnel streams are dialed: the listener, reached over
// loopback when it binds every interface.
func localAddr(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}
