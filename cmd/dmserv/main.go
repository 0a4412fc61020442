// Package main provides the entry point for the dmserv bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/z0w13/dmserv/internal/client"
	"github.com/z0w13/dmserv/internal/config"
	"github.com/z0w13/dmserv/internal/handler"
	"github.com/z0w13/dmserv/internal/health"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/server"
	"github.com/z0w13/dmserv/internal/service"
	"github.com/z0w13/dmserv/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	logger.Info("Starting dmserv",
		zap.String("version", version),
		zap.String("database_host", cfg.Database.Host),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("roles_enabled", cfg.Reconcile.RolesEnabled),
		zap.String("role_source", cfg.Reconcile.RoleSource))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("dmserv failed", zap.Error(err))
	}
	logger.Info("dmserv stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(reg)

	tenantStore, err := store.NewPostgresTenantStore(
		ctx,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.ConnMaxLifetime,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize tenant store: %w", err)
	}
	defer tenantStore.Close()

	if cfg.Database.Migrate {
		if err := tenantStore.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate tenant store: %w", err)
		}
	}
	logger.Info("Tenant store initialized")

	var leases store.LeaseStore
	if cfg.Redis.Enabled {
		leases, err = store.NewRedisLeaseStore(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize lease store: %w", err)
		}
	} else {
		leases = store.NewMemoryLeaseStore()
	}
	defer leases.Close()

	cache := store.NewInMemoryCache(cfg.Cache.MaxSize, time.Minute, logger)
	defer cache.Close()

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	discord := client.NewDiscordClient(session, logger)
	pluralkit := client.NewPluralKitClient(client.PluralKitClientConfig{
		BaseURL:           cfg.PluralKit.BaseURL,
		UserAgent:         cfg.PluralKit.UserAgent,
		Timeout:           cfg.PluralKit.Timeout,
		RequestsPerSecond: cfg.PluralKit.RequestsPerSecond,
		BurstSize:         cfg.PluralKit.BurstSize,
	}, logger)

	stats := model.NewStats(time.Now(), runtime.NumCPU())
	guildCount := func() int {
		session.State.RLock()
		defer session.State.RUnlock()
		return len(session.State.Guilds)
	}

	fetcher := service.NewDesiredStateFetcher(pluralkit, cfg.Reconcile.RoleSource, m, logger)
	reader := service.NewObservedStateReader(discord, m, logger)
	apply := service.NewApplyService(discord, m, logger)
	lock := service.NewPassLockService(leases, cfg.Reconcile.LockTTL, logger)
	guilds := service.NewGuildService(tenantStore, discord, cache, cfg.Cache.GuildTTL, m, logger)
	setup := service.NewSetupService(tenantStore, pluralkit, discord, logger)
	statsService := service.NewStatsService(
		stats,
		service.ProcfsSampler{},
		tenantStore,
		guildCount,
		version,
		cfg.Stats.Interval,
		m,
		logger,
	)

	scheduler := service.NewScheduler(m, logger)

	fronterTask := service.NewReconcileTask(
		service.NewFronterService(tenantStore, fetcher, reader, apply, discord, logger),
		tenantStore,
		lock,
		guilds,
		cfg.Reconcile.FrontersInterval,
		m,
		logger,
	)
	scheduler.Register(fronterTask)

	// Left as a nil interface when disabled so handlers can tell
	var roleRunner handler.GuildReconciler
	if cfg.Reconcile.RolesEnabled {
		roleTask := service.NewReconcileTask(
			service.NewRoleService(tenantStore, fetcher, reader, apply, logger),
			tenantStore,
			lock,
			guilds,
			cfg.Reconcile.RolesInterval,
			m,
			logger,
		)
		scheduler.Register(roleTask)
		roleRunner = roleTask
	}
	scheduler.Register(statsService)

	interactions := handler.NewInteractionHandler(fronterTask, roleRunner, setup, statsService, logger)
	gateway := handler.NewGatewayHandler(stats, logger)
	gateway.Register(session)
	session.AddHandler(interactions.HandleInteraction)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	defer session.Close()
	logger.Info("Discord session opened")

	if cfg.Discord.RegisterCommands {
		if err := registerCommands(session, cfg.Discord.CommandGuildID, interactions.Commands()); err != nil {
			return err
		}
		logger.Info("Commands registered", zap.String("command_guild_id", cfg.Discord.CommandGuildID))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	if cfg.Server.Enabled {
		errorHandler := handler.NewErrorHandler(logger)
		handlers := handler.NewHandlers(fronterTask, roleRunner, scheduler, statsService, guilds, errorHandler, logger)
		healthCheck := health.NewHealthChecker(tenantStore, leases, stats, logger)
		httpServer := server.NewServer(cfg, handlers, healthCheck, errorHandler, m, logger)

		g.Go(httpServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			return shutdown(httpServer.Shutdown, cfg.Server.ShutdownTimeout)
		})
	}

	if cfg.Metrics.Enabled {
		metricsServer := server.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, reg, logger)

		g.Go(metricsServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			return shutdown(metricsServer.Shutdown, cfg.Server.ShutdownTimeout)
		})
	}

	err = g.Wait()
	logger.Info("Shutting down gracefully")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func registerCommands(session *discordgo.Session, guildID string, cmds []*discordgo.ApplicationCommand) error {
	if session.State.User == nil {
		return errors.New("failed to register commands: session has no user")
	}
	if _, err := session.ApplicationCommandBulkOverwrite(session.State.User.ID, guildID, cmds); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	return nil
}

func shutdown(fn func(context.Context) error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx)
}

// initLogger initializes the zap logger.
func initLogger(logLevel, logFormat string) *zap.Logger {
	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if logFormat == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
