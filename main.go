package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"portfolio-ledger/config"
	"portfolio-ledger/handlers"
	"portfolio-ledger/middleware"
	"portfolio-ledger/models"
	"portfolio-ledger/services"
	"portfolio-ledger/utils"
	"portfolio-ledger/workers"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logrus.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	if err := models.AutoMigrate(db); err != nil {
		logrus.WithError(err).Fatal("failed to migrate database")
	}

	planService := services.NewPlanService(db)
	if seeded, err := planService.SeedDefaultPlans(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to seed plans")
	} else if seeded > 0 {
		logrus.WithField("count", seeded).Info("🌱 seeded default plans")
	}

	if !cfg.R2.Enabled() {
		logrus.Fatal("R2 is not configured: CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_ACCESS_KEY_SECRET and R2_BUCKET_NAME are required")
	}
	store, err := utils.NewObjectStore(ctx, cfg.R2)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize R2 client")
	}

	inbox := services.NewNotificationService(db)
	var notifier services.Notifier = inbox
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).Fatal("failed to connect to redis")
		}
		notifier = services.NewQueueNotifier(rdb, cfg.NotificationQueue)
		workers.NewNotificationWorker(rdb, cfg.NotificationQueue, inbox).Start(ctx)
	} else {
		logrus.Warn("⚠️  REDIS_ADDR not set, notifications are written synchronously")
	}

	users := services.NewInvestorDirectory(db)
	referrals := services.NewReferralService(db, cfg.ReferralExpiryDays)
	portfolios := services.NewPortfolioService(db, notifier)

	svc := &handlers.Services{
		Plans:         planService,
		Requests:      services.NewRequestService(db, users, store, notifier),
		Investments:   services.NewInvestmentService(db, users, notifier),
		History:       services.NewHistoryService(db),
		Orchestrator:  services.NewOrchestrator(db, notifier, cfg.ReferralRewardPercent),
		Portfolios:    portfolios,
		Referrals:     referrals,
		Notifications: inbox,
	}

	if cfg.SyncServiceURL != "" {
		workers.NewInvestorSyncWorker(db, referrals, cfg.SyncServiceURL, cfg.ServiceToken, cfg.SyncInterval, utils.HTTPClient).Start(ctx)
		wallets := workers.NewWalletSyncClient(db, cfg.SyncServiceURL, cfg.ServiceToken, utils.HTTPClient)
		go workers.PollWallets(ctx, wallets, cfg.SyncInterval)
	} else {
		logrus.Warn("⚠️  SYNC_SERVICE_URL not set, investor directory will not be refreshed")
	}

	if _, err := portfolios.StartAccrualScheduler(ctx, cfg.AccrualHour, cfg.AccrualMinute); err != nil {
		logrus.WithError(err).Fatal("failed to start accrual scheduler")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// Only gateway requests are served; /health stays open for probes.
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/health"))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, svc)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Error("server error")
		}
	}()

	logrus.Infof("✅ Server running on http://localhost:%s", cfg.Port)
	logrus.Infof("✅ Daily accrual scheduled at %02d:%02d UTC", cfg.AccrualHour, cfg.AccrualMinute)
	logrus.Infof("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Warn("server shutdown")
	}
}
