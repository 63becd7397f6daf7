// Package app boots the service: configuration, database, providers, HTTP.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/auroralabs/aurora/internal/billing"
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/db"
	"github.com/auroralabs/aurora/internal/distribution"
	adminapi "github.com/auroralabs/aurora/internal/http/api/admin"
	"github.com/auroralabs/aurora/internal/http/api/front"
	"github.com/auroralabs/aurora/internal/http/api/webhooks"
	"github.com/auroralabs/aurora/internal/logging"
	"github.com/auroralabs/aurora/internal/payment"
	"github.com/auroralabs/aurora/internal/payment/creem"
	"github.com/auroralabs/aurora/internal/payment/stripe"
	"github.com/auroralabs/aurora/internal/ratelimit"
	"github.com/auroralabs/aurora/internal/settings"
	"github.com/auroralabs/aurora/internal/util"
	"github.com/auroralabs/aurora/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the HTTP server and blocks until ctx is canceled.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		return errRefresh
	}

	ledger := credits.NewLedger(conn)
	catalog := billing.NewCatalog(cfg.Plans, cfg.Credits)

	providers := make(map[string]payment.Provider)
	var stripeParser, creemParser webhooks.EventParser
	if stripeProvider, errStripe := stripe.New(cfg.Stripe); errStripe == nil {
		providers[payment.ProviderStripe] = stripeProvider
		stripeParser = stripeProvider
		log.Infof("app: stripe provider enabled key=%s", util.HideSecret(cfg.Stripe.SecretKey))
	} else {
		log.WithError(errStripe).Warn("app: stripe provider disabled")
	}
	if creemProvider, errCreem := creem.New(cfg.Creem); errCreem == nil {
		providers[payment.ProviderCreem] = creemProvider
		creemParser = creemProvider
		log.Infof("app: creem provider enabled key=%s", util.HideSecret(cfg.Creem.APIKey))
	} else {
		log.WithError(errCreem).Warn("app: creem provider disabled")
	}

	service := billing.NewService(conn, ledger, catalog, providers, cfg.Server)
	processor := webhook.NewProcessor(conn, service, catalog)
	job := distribution.NewJob(conn, ledger, service)

	var limiter ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	front.RegisterFrontRoutes(engine, conn, cfg.JWT, ledger, service, limiter)
	adminapi.RegisterAdminRoutes(engine, conn, cfg.JWT, ledger)
	webhooks.RegisterWebhookRoutes(engine, processor, stripeParser, creemParser, job, cfg.Jobs)

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("app: listening on %s", cfg.Server.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}
