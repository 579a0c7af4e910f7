package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mining-reward-system/config"
	"mining-reward-system/handlers"
	"mining-reward-system/middleware"
	"mining-reward-system/pkg/logger"
	"mining-reward-system/services"
	"mining-reward-system/store"
	"mining-reward-system/utils"
	"mining-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := logger.InitLogger(&logger.Config{
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFilename,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		zap.L().Fatal("database unavailable", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		zap.L().Fatal("failed to migrate database", zap.Error(err))
	}
	st := store.New(db)

	clock := clockwork.NewRealClock()
	publisher := services.MultiPublisher{
		services.NewOutboxPublisher(st, language.English),
		services.LogPublisher{},
	}

	var cache services.SnapshotCache
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zap.L().Warn("redis unreachable, leaderboard snapshots will not survive restarts", zap.Error(err))
		}
		cache = services.NewRedisSnapshotCache(rdb)
	}

	burnService := services.NewBurnService(st, clock, publisher, cfg.BurnRate)
	groupService := services.NewGroupService(st, clock, publisher)
	bonusService := services.NewBonusService(st, clock, publisher, rand.New(rand.NewSource(time.Now().UnixNano())))
	board := services.NewLeaderboard(st, cache, clock, cfg.LeaderboardSize)
	watcher := services.NewPendingBonusWatcher(bonusService, clock, cfg.PendingPollInterval)

	var authClient *services.AuthServiceClient
	if cfg.AuthServiceURL != "" {
		authClient = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken)
	}

	if warmed := board.Warm(ctx); warmed > 0 {
		zap.L().Info("leaderboard snapshots restored from cache", zap.Int("periods", warmed))
	}
	poller, err := services.NewLeaderboardPoller(board, clock, cfg.LeaderboardRefreshInterval)
	if err != nil {
		zap.L().Fatal("failed to create leaderboard poller", zap.Error(err))
	}
	if err := poller.Start(); err != nil {
		zap.L().Fatal("failed to start leaderboard poller", zap.Error(err))
	}

	scheduler, err := services.NewScheduler(clock)
	if err != nil {
		zap.L().Fatal("failed to create scheduler", zap.Error(err))
	}
	jobs := services.JobSet{
		Burns:             burnService,
		Bonuses:           bonusService,
		BurnSweepInterval: cfg.BurnSweepInterval,
		BonusPurgeEvery:   cfg.BonusPurgeInterval,
	}
	if cfg.R2Enabled() {
		r2cfg := utils.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2Bucket,
			CDNBaseURL:      cfg.CDNBaseURL,
		}
		client, err := utils.NewR2Client(ctx, r2cfg)
		if err != nil {
			zap.L().Fatal("failed to initialize R2 client", zap.Error(err))
		}
		jobs.Archiver = services.NewLeaderboardArchiver(board, utils.NewR2Archiver(client, r2cfg), clock)
	}
	if err := services.RegisterJobs(scheduler, jobs); err != nil {
		zap.L().Fatal("failed to register jobs", zap.Error(err))
	}
	scheduler.Start()

	if cfg.SyncServiceURL != "" {
		syncClient := workers.NewSyncClient(cfg.SyncServiceURL, cfg.ServiceToken, cfg.ProfileSyncTimeout)
		workers.NewMinerSyncWorker(syncClient, st, clock, time.Minute).Start(ctx)
		workers.NewSessionSyncWorker(syncClient, burnService, st, clock, cfg.SyncPollInterval).Start(ctx)
	} else {
		zap.L().Warn("SYNC_SERVICE_URL not set, mining sessions will not be ingested")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	handlers.SetupHealthRoutes(app, st)

	// Only gateway requests past this point
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token, X-User-ID, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupBurnRoutes(app, burnService)
	handlers.SetupGroupRoutes(app, groupService)
	handlers.SetupLeaderboardRoutes(app, board)
	handlers.SetupBonusRoutes(app, bonusService, watcher, authClient)
	handlers.SetupEventRoutes(app, st, clock)

	go func() {
		zap.L().Info("mining reward service listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zap.L().Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	if err := scheduler.Stop(); err != nil {
		zap.L().Warn("scheduler shutdown failed", zap.Error(err))
	}
	if err := poller.Stop(); err != nil {
		zap.L().Warn("leaderboard poller shutdown failed", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zap.L().Warn("http shutdown failed", zap.Error(err))
	}
}
