// Package httpapi wires the admin HTTP API (Gin) to the subscription
// service, the checker status, middleware and route handlers.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger (with redaction)
//  4. Recovery
//  5. Body size limit
//  6. Gzip
//  7. Metrics (+ /metrics)
//  8. Idempotency-Key validation (marks replays)
//  9. Rate limiter (per chat or IP; replays bypass it)
//  10. CORS and security headers
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-price-watcher/docs"
	"github.com/tbourn/go-price-watcher/internal/config"
	"github.com/tbourn/go-price-watcher/internal/domain"
	"github.com/tbourn/go-price-watcher/internal/http/handlers"
	"github.com/tbourn/go-price-watcher/internal/http/middleware"
	"github.com/tbourn/go-price-watcher/internal/repo"
	"github.com/tbourn/go-price-watcher/internal/services"
)

// subscriptionRepoShim adapts the repository free functions to
// services.SubscriptionRepo.
type subscriptionRepoShim struct{}

func (subscriptionRepoShim) CreateSubscription(ctx context.Context, db *gorm.DB, chatID int64, url string, label *string) (*domain.Subscription, error) {
	return repo.CreateSubscription(ctx, db, chatID, url, label)
}

func (subscriptionRepoShim) ListSubscriptions(ctx context.Context, db *gorm.DB, chatID int64) ([]domain.Subscription, error) {
	return repo.ListSubscriptions(ctx, db, chatID)
}

func (subscriptionRepoShim) GetSubscription(ctx context.Context, db *gorm.DB, chatID int64, id uint) (*domain.Subscription, error) {
	return repo.GetSubscription(ctx, db, chatID, id)
}

func (subscriptionRepoShim) DeactivateSubscription(ctx context.Context, db *gorm.DB, chatID int64, id uint) error {
	return repo.DeactivateSubscription(ctx, db, chatID, id)
}

func (subscriptionRepoShim) ListHistory(ctx context.Context, db *gorm.DB, chatID int64, subID uint, limit int) ([]domain.PriceObservation, error) {
	return repo.ListHistory(ctx, db, chatID, subID, limit)
}

func (subscriptionRepoShim) SubscriptionsStats(ctx context.Context, db *gorm.DB, chatID int64) (int64, *time.Time, error) {
	return repo.SubscriptionsStats(ctx, db, chatID)
}

func (subscriptionRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, chatID int64, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, chatID, key, now)
}

func (subscriptionRepoShim) CreateSubscriptionOnce(ctx context.Context, db *gorm.DB, chatID int64, key, url string, label *string, ttl time.Duration) (*domain.Subscription, error) {
	return repo.CreateSubscriptionOnce(ctx, db, chatID, key, url, label, ttl)
}

// NewSubscriptionService returns the service backed by the repo package.
// The bot and the HTTP API share it.
func NewSubscriptionService(db *gorm.DB) *services.SubscriptionService {
	return services.NewSubscriptionService(db, subscriptionRepoShim{})
}

// RegisterRoutes attaches middleware and endpoints to r. checker may be nil
// when the scheduler is disabled; /checker/status is then not mounted.
func RegisterRoutes(r *gin.Engine, subs handlers.SubscriptionService, checker handlers.StatusProvider, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, subs.KnownKey))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByChatOrIP(), "/health", "/metrics")
	r.Use(rl.Handler())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "ETag", "Location", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(subs, checker)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		s := api.Group("/chats/:chat_id/subscriptions")
		s.POST("", h.CreateSubscription)
		s.GET("", h.ListSubscriptions)
		s.DELETE("/:id", h.DeleteSubscription)
		s.GET("/:id/history", h.SubscriptionHistory)

		if checker != nil {
			api.GET("/checker/status", h.CheckerStatus)
		}
	}
}

// NewServer returns an *http.Server for handler using the configured port
// and timeouts.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// limitBody caps request bodies at maxBytes; larger bodies fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
