package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"realtorvoice/internal/auth"
	"realtorvoice/internal/config"
	"realtorvoice/internal/crm"
	"realtorvoice/internal/database"
	"realtorvoice/internal/handlers"
	"realtorvoice/internal/middleware"
	"realtorvoice/internal/repository"
	"realtorvoice/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

// app holds everything the commands share
type app struct {
	cfg    config.Config
	logger *zap.Logger
	db     *gorm.DB

	users         *repository.UserRepo
	reminders     *repository.ReminderRepo
	notifications *repository.NotificationRepo

	registry *crm.Registry
	facade   *crm.Facade
	worker   *services.ReminderWorker
	redis    *redis.Client
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// bootstrap loads configuration and connects to the database
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		users:         repository.NewUserRepo(db),
		reminders:     repository.NewReminderRepo(db),
		notifications: repository.NewNotificationRepo(db),
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

// buildCRM registers every provider with usable credentials. A provider with
// missing settings is logged and left out; the rest of the API still works.
func (a *app) buildCRM() error {
	cipher, err := auth.NewCipher(a.cfg.TokenEncryptionSecret)
	if err != nil {
		return fmt.Errorf("failed to create token cipher: %w", err)
	}

	var opts []crm.GuardOption
	if a.cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		opts = append(opts, crm.WithLocker(crm.NewRedisLocker(a.redis, 30*time.Second)))
		a.logger.Info("using redis for token refresh locks", zap.String("addr", a.cfg.RedisAddr))
	}

	credentials := repository.NewCredentialRepo(a.db)
	a.registry = crm.NewRegistry()

	providers := map[crm.ProviderID]config.ProviderConfig{
		crm.WiseAgent:    a.cfg.WiseAgent,
		crm.FollowUpBoss: a.cfg.FollowUpBoss,
		crm.RealGeeks:    a.cfg.RealGeeks,
	}
	for _, id := range crm.AllProviders {
		settings, err := crm.ResolveSettings(id, providers[id])
		if err != nil {
			var cfgErr *crm.ConfigError
			if errors.As(err, &cfgErr) {
				a.logger.Warn("crm provider disabled", zap.String("provider", string(id)), zap.Error(err))
				continue
			}
			return err
		}

		guard := crm.NewTokenGuard(id, settings.OAuth, credentials, a.users, cipher, a.logger, opts...)
		provider, err := crm.NewProvider(id, settings.APIURL, guard)
		if err != nil {
			return err
		}
		a.registry.Register(provider, guard)
	}

	a.facade = crm.NewFacade(a.registry, a.users, a.logger)
	a.logger.Info("crm providers ready", zap.Int("count", len(a.registry.IDs())))
	return nil
}

func (a *app) buildWorker() {
	email := services.NewEmailService(a.cfg)
	a.worker = services.NewReminderWorker(
		a.reminders,
		a.notifications,
		a.notifications,
		a.users,
		services.FacadeTaskSink{Facade: a.facade},
		email,
		a.cfg.ReminderSweepInterval,
		a.cfg.ReminderBatchSize,
		a.logger.Named("reminders"),
	)
}

// buildHandlers wires the services behind the HTTP API. Optional
// integrations stay nil interfaces when unconfigured.
func (a *app) buildHandlers() (*handlers.Handler, error) {
	issuer, err := auth.NewTokenIssuer(a.cfg.JWTSecret, a.cfg.JWTExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	verifier, err := auth.NewGoogleVerifier(a.cfg.GoogleClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to create google verifier: %w", err)
	}

	var geocoder services.Geocoder
	if g, err := services.NewMapsGeocoder(a.cfg.GoogleMapsAPIKey); err == nil {
		geocoder = g
	} else {
		a.logger.Warn("geocoding disabled", zap.Error(err))
	}

	var photos services.PhotoUploader
	if images, err := services.NewImageService(a.cfg); err == nil {
		photos = images
	} else {
		a.logger.Warn("photo uploads disabled", zap.Error(err))
	}

	var gateway services.PaymentGateway
	if a.cfg.StripeSecretKey != "" {
		gateway = services.NewStripeGateway(a.cfg.StripeSecretKey)
	} else {
		a.logger.Warn("billing disabled: STRIPE_SECRET_KEY is not set")
	}

	defaults, err := services.DefaultRules()
	if err != nil {
		return nil, err
	}

	return handlers.New(handlers.Deps{
		Issuer:     issuer,
		Verifier:   verifier,
		Accounts:   services.NewAccountService(a.users, a.notifications, photos, a.logger),
		Reminders:  services.NewReminderService(a.reminders, a.reminders, defaults, a.logger),
		Properties: services.NewMLSService(a.cfg.MLSBaseURL, a.cfg.MLSAPIKey, geocoder, repository.NewSearchRepo(a.db), a.logger),
		Billing:    services.NewBillingService(a.users, gateway, a.cfg, a.logger),
		Registry:   a.registry,
		CRM:        a.facade,
		AppBaseURL: a.cfg.AppBaseURL,
		Logger:     a.logger,
	}), nil
}

func (a *app) router(h *handlers.Handler) *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// Configure trusted proxies
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RequestLogger(a.logger))
	if limiter := middleware.NewRateLimiter(a.cfg.RateLimitRPM); limiter != nil {
		router.Use(limiter.Handler())
	}

	h.RegisterRoutes(router)
	return router
}

func runServe(ctx context.Context, withWorker bool) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if err := database.Migrate(a.db); err != nil {
		return err
	}
	if err := a.buildCRM(); err != nil {
		return err
	}
	h, err := a.buildHandlers()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if withWorker {
		a.buildWorker()
		a.worker.Start(ctx)
	}

	server := &http.Server{
		Addr:              ":" + a.cfg.HTTPPort,
		Handler:           a.router(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("port", a.cfg.HTTPPort), zap.String("env", a.cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received, stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

func runSweep(ctx context.Context, purgeAfterDays int) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.buildCRM(); err != nil {
		return err
	}
	a.buildWorker()

	result, emails, err := a.worker.RunOnce(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("sweep finished",
		zap.Int("processed", result.Processed),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("emails", emails),
	)

	if purgeAfterDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -purgeAfterDays)
		purged, err := a.notifications.PurgeSent(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge sent emails: %w", err)
		}
		a.logger.Info("purged sent emails", zap.Int64("count", purged), zap.Time("before", cutoff))
	}
	return nil
}

func runMigrate() error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if err := database.Migrate(a.db); err != nil {
		return err
	}
	a.logger.Info("database migrated")
	return nil
}
