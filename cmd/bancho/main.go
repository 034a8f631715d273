// Package main provides the bancho server binary.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/config"
	"github.com/cory-johannsen/bancho/internal/frontend/web"
	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/command"
	"github.com/cory-johannsen/bancho/internal/game/match"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/gameserver"
	"github.com/cory-johannsen/bancho/internal/geo"
	"github.com/cory-johannsen/bancho/internal/observability"
	"github.com/cory-johannsen/bancho/internal/scripting"
	"github.com/cory-johannsen/bancho/internal/server"
	"github.com/cory-johannsen/bancho/internal/storage/accountdb"
	"github.com/cory-johannsen/bancho/internal/storage/kv"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty = defaults and environment")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Type)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting bancho",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("database", cfg.Database.Driver),
		zap.String("storage", cfg.Storage.Backend),
	)

	accounts, err := accountdb.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("opening account database", zap.Error(err))
	}
	defer func() { _ = accounts.Close() }()

	mirror, err := openMirror(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("opening session storage", zap.Error(err))
	}
	defer func() { _ = mirror.Close() }()

	sessions := session.NewStore(mirror, logger)
	channels := channel.NewRegistry(sessions, mirror, logger)
	defs := channel.DefaultCatalog()
	if cfg.Bancho.ChannelsFile != "" {
		if defs, err = channel.LoadCatalog(cfg.Bancho.ChannelsFile); err != nil {
			logger.Fatal("loading channel catalog", zap.Error(err))
		}
	}
	for _, def := range defs {
		if err := channels.Create(def); err != nil {
			logger.Fatal("creating channel", zap.String("channel", def.Name), zap.Error(err))
		}
	}
	logger.Info("channels loaded", zap.Int("count", len(defs)))

	commands := command.DefaultRegistry(cfg.Bancho.CommandPrefix)
	if cfg.Bancho.ScriptsDir != "" {
		scripts := scripting.NewManager(logger)
		if err := scripts.Load(cfg.Bancho.ScriptsDir, cfg.Bancho.ScriptInstructionCap); err != nil {
			logger.Fatal("loading command scripts", zap.String("dir", cfg.Bancho.ScriptsDir), zap.Error(err))
		}
		defer scripts.Close()
		for _, cmd := range scripts.Commands() {
			if err := commands.Register(cmd); err != nil {
				logger.Warn("skipping script command", zap.String("command", cmd.Name), zap.Error(err))
			}
		}
	}

	countries, err := geo.NewResolver(nil)
	if err != nil {
		logger.Fatal("loading time zones", zap.Error(err))
	}

	bancho, err := gameserver.NewServer(gameserver.Deps{
		Sessions:  sessions,
		Channels:  channels,
		Matches:   match.NewEngine(sessions, channels, mirror, logger),
		Accounts:  accounts,
		Countries: countries,
		Commands:  commands,
		Logger:    logger,
	}, gameserver.OptionsFromConfig(cfg.Bancho))
	if err != nil {
		logger.Fatal("creating bancho server", zap.Error(err))
	}

	webServer := web.NewServer(cfg.HTTP, cfg.Bancho.ProtocolVersion, bancho, logger)

	lifecycle := server.NewLifecycle(logger, cfg.HTTP.ShutdownTimeout)
	lifecycle.Add("http", webServer)

	logger.Info("bancho initialized", zap.Duration("startup", time.Since(start)))
	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("bancho stopped with error", zap.Error(err))
	}
}

func openMirror(ctx context.Context, cfg config.StorageConfig) (kv.Store, error) {
	if cfg.Backend == config.BackendRedis {
		return kv.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
	}
	return kv.NewMemoryStore(), nil
}
