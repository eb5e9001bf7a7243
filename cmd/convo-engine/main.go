package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/auth"
	"github.com/clippy-oss/homie/convo-engine/internal/cli"
	"github.com/clippy-oss/homie/convo-engine/internal/config"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
	"github.com/clippy-oss/homie/convo-engine/internal/relay"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
	"github.com/clippy-oss/homie/convo-engine/internal/ringing"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
	grpcTransport "github.com/clippy-oss/homie/convo-engine/internal/transport/grpc"
	mcpTransport "github.com/clippy-oss/homie/convo-engine/internal/transport/mcp"
	wsTransport "github.com/clippy-oss/homie/convo-engine/internal/transport/ws"
)

const (
	tokenTTL       = 24 * time.Hour
	devJWTSecret   = "convo-engine-development-secret"
	shutdownWindow = 10 * time.Second
)

// app holds everything the run modes share.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	eventBus   domain.EventBus
	core       *service.Core
	dispatcher *intent.Dispatcher
	timer      *ringing.Timer
	sweeper    *ringing.Sweeper
	closers    []func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// CLI modes own stdout, so logs go to stderr and stay quiet.
	if cfg.Mode == "server" {
		logger.Init(cfg.LogLevel, cfg.Env)
	} else {
		logger.Init("error", "development")
	}
	log := logger.Module("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.close()

	sweepCancel := a.sweeper.Start(ctx)
	defer sweepCancel()
	defer a.timer.Stop()

	switch cli.Mode(cfg.Mode) {
	case cli.ModeInteractive:
		handler := cli.NewCommandHandler(a.dispatcher, a.eventBus)
		if err := cli.NewInteractiveCLI(handler, os.Stdin, os.Stdout).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("cli error")
		}
	case cli.ModeHeadless:
		if err := cli.NewHeadlessCLI(a.dispatcher, a.eventBus, os.Stdin, os.Stdout).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("cli error")
		}
	default:
		runServerMode(ctx, a)
	}
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	db, err := repository.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sqlDB.Close)

	if cfg.RedisURL != "" {
		client, err := relay.Dial(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		bus, err := relay.New(ctx, client, relay.DefaultChannel)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, bus.Close)
		a.eventBus = bus
		log.Info().Msg("cross-instance event relay enabled")
	} else {
		local := domain.NewEventBus()
		local.OnDrop(func(e domain.Envelope) {
			metrics.EventsDropped.WithLabelValues(string(e.Kind)).Inc()
		})
		a.eventBus = local
	}

	a.core = service.NewCore(db, a.eventBus, cfg.MaxCallParticipants)
	a.dispatcher = intent.NewDispatcher(a.core)

	a.timer = ringing.NewTimer(a.core.Calls, cfg.RingTimeout)
	a.core.Calls.SetRingScheduler(a.timer)
	a.sweeper = ringing.NewSweeper(a.core.Calls, cfg.SweepCron, cfg.RingTimeout)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

func runServerMode(ctx context.Context, a *app) {
	cfg := a.cfg
	log := a.log

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn().Msg("no jwt secret configured, using the development secret")
		secret = devJWTSecret
	}
	authenticator := auth.New(secret, tokenTTL)

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Str("grpc", cfg.GRPCAddress).
		Str("http", cfg.HTTPAddress).
		Str("mcp", cfg.MCPAddress).
		Msg("convo engine starting")

	grpcServer := grpcTransport.NewServer(
		a.dispatcher,
		a.eventBus,
		authenticator,
		grpcTransport.ServerConfig{
			Address: cfg.GRPCAddress,
		},
	)

	wsServer := wsTransport.NewServer(
		a.dispatcher,
		a.eventBus,
		authenticator,
		wsTransport.ServerConfig{
			Address:     cfg.HTTPAddress,
			IntentRPS:   cfg.IntentRPS,
			IntentBurst: cfg.IntentBurst,
		},
	)

	var mcpServer *mcpTransport.Server
	if cfg.MCPAddress != "" {
		mcpServer = mcpTransport.NewServer(a.core, mcpTransport.ServerConfig{
			Address: cfg.MCPAddress,
		})
	}

	errCh := make(chan error, 3)

	go func() {
		log.Info().Str("address", cfg.GRPCAddress).Msg("starting gRPC server")
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		log.Info().Str("address", cfg.HTTPAddress).Msg("starting HTTP server")
		if err := wsServer.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if mcpServer != nil {
		go func() {
			log.Info().Str("address", cfg.MCPAddress).Msg("starting MCP SSE server")
			if err := mcpServer.Start(); err != nil {
				errCh <- fmt.Errorf("MCP server error: %w", err)
			}
		}()
	}

	// Stale rings left by a previous process are settled right away.
	if n, err := a.sweeper.RunOnce(ctx); err != nil {
		log.Warn().Err(err).Msg("initial ringing sweep failed")
	} else if n > 0 {
		log.Info().Int("expired", n).Msg("expired stale ringing participants")
	}

	// Print ready message for subprocess coordination
	fmt.Println("ready")

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server stop error")
	}

	log.Info().Msg("stopping gRPC server")
	grpcServer.Stop()

	if mcpServer != nil {
		log.Info().Msg("stopping MCP server")
		if err := mcpServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("MCP server stop error")
		}
	}

	log.Info().Msg("shutdown complete")
}
