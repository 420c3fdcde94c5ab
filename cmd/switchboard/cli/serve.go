package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jschaf/switchboard/internal/backend"
	"github.com/jschaf/switchboard/internal/channel"
	"github.com/jschaf/switchboard/internal/config"
	"github.com/jschaf/switchboard/internal/pool"
	"github.com/jschaf/switchboard/internal/registry"
	"github.com/jschaf/switchboard/internal/router"
	"github.com/jschaf/switchboard/internal/session"
	"github.com/jschaf/switchboard/internal/supervisor"
	"github.com/jschaf/switchboard/internal/tier"
)

// shutdownTimeout bounds the final resume-token checkpointing on exit.
const shutdownTimeout = 30 * time.Second

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the routing daemon",
		Run:   runServe,
	}
	RootCmd.AddCommand(cmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}

	logger := newLogger(cfg.Debug)
	slog.SetDefault(logger)

	if err := serve(cfg, logger); err != nil {
		exitErr("serve", err)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func serve(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()
	}()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = components.store.Close() }()

	components.start(ctx, logger)
	logger.Info("switchboard started",
		"socket", cfg.SocketPath,
		"registry", cfg.RegistryPath)

	<-ctx.Done()

	// The parent context is already done; shutdown gets its own budget.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	components.supervisor.Stop()
	components.pool.Close(shutdownCtx)
	logger.Info("shutdown complete")
	return nil
}

// components holds everything serve wires together.
type components struct {
	store      registry.Store
	pool       *pool.Pool
	router     *router.Router
	supervisor *supervisor.Supervisor
	source     channel.Source
}

func initializeComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (*components, error) {
	store, err := openRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	contacts, err := tier.LoadContactsFile(cfg.ContactsPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	resolver := tier.NewCachedResolver(contacts, cfg.TierCacheTTL, tier.WithCacheLogger(logger))

	agentBackend, err := backend.NewExec(backend.ExecConfig{
		Command:    cfg.BackendCommand,
		Args:       cfg.BackendArgs,
		ResumeFlag: cfg.BackendResumeFlag,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create agent backend: %w", err)
	}

	sessionPool := pool.New(ctx, store, agentBackend, pool.Config{
		ErrorThreshold: cfg.ErrorThreshold,
		IdleTimeout:    cfg.IdleTimeout,
		Logger:         logger,
		Session: session.Config{
			SerializeTurns:     cfg.SerializeTurns,
			QueueWarnDepth:     cfg.QueueWarnDepth,
			CheckpointInterval: cfg.CheckpointInterval,
			StartRetryBackoff:  cfg.StartRetryBackoff,
			Logger:             logger,
		},
	})

	messageRouter, err := router.New(sessionPool, resolver, router.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &components{
		store:      store,
		pool:       sessionPool,
		router:     messageRouter,
		supervisor: supervisor.New(sessionPool, supervisor.WithInterval(cfg.SweepInterval), supervisor.WithLogger(logger)),
		source:     channel.NewSocketSource(cfg.SocketPath, channel.WithSocketLogger(logger)),
	}, nil
}

func (c *components) start(ctx context.Context, logger *slog.Logger) {
	c.supervisor.Start(ctx)

	go func() {
		if err := c.router.Run(ctx, c.source); err != nil {
			logger.Error("ingress failed", "source", c.source.Name(), "error", err)
		}
	}()
}
