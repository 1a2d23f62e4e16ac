// Command pricewatcher runs the periodic price checker together with its
// Telegram command bot and the admin HTTP API.
//
//	@title						Price Watcher API
//	@version					1.0
//	@description				Manage price subscriptions and inspect the checker.
//	@BasePath					/api/v1
//	@schemes					http https
//	@produce					json
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-price-watcher/internal/bot"
	"github.com/tbourn/go-price-watcher/internal/checker"
	"github.com/tbourn/go-price-watcher/internal/config"
	"github.com/tbourn/go-price-watcher/internal/extract"
	"github.com/tbourn/go-price-watcher/internal/fetch"
	httpapi "github.com/tbourn/go-price-watcher/internal/http"
	"github.com/tbourn/go-price-watcher/internal/notify"
	"github.com/tbourn/go-price-watcher/internal/observability"
	"github.com/tbourn/go-price-watcher/internal/repo"
	"github.com/tbourn/go-price-watcher/internal/scheduler"
	"github.com/tbourn/go-price-watcher/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName)
	sysutil.SetLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	target := cfg.Storage.Path
	if cfg.Storage.Driver == repo.DriverPostgres {
		target = cfg.Storage.DSN
	}
	db, err := repo.Open(cfg.Storage.Driver, target, repo.NewGormLogger(log.Logger, sysutil.GormLogLevel(cfg.LogLevel)))
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	var (
		botAPI *tgbotapi.BotAPI
		sender notify.Sender
	)
	if cfg.Bot.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram login failed")
		}
		log.Info().Str("bot", botAPI.Self.UserName).Msg("telegram bot authorized")
		sender = botAPI
	}

	sink, closeSink, err := buildSink(ctx, cfg, sender)
	if err != nil {
		log.Fatal().Err(err).Msg("notification sink setup failed")
	}

	store := repo.NewStore(db)
	runner := checker.NewRunner(
		store,
		fetch.New(fetch.NewClient(cfg.Checker.RequestTimeout), cfg.Checker.UserAgent, cfg.Checker.MaxBodyBytes),
		extract.JSONLD{},
		sink,
		checker.NewLimiter(cfg.Checker.MaxConcurrency),
	)
	sched := scheduler.New(store, runner, cfg.Checker.Interval, scheduler.WithRunOnStart(cfg.Checker.RunOnStart))
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	svc := httpapi.NewSubscriptionService(db)
	svc.IdempotencyTTL = cfg.IdempotencyTTL
	var wg sync.WaitGroup

	if botAPI != nil {
		poller := bot.NewPoller(botAPI, bot.NewCommands(svc), cfg.Bot.PollTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := poller.Run(ctx); err != nil {
				log.Error().Err(err).Msg("bot poller stopped")
			}
		}()
	}

	var srv *http.Server
	if cfg.HTTPEnabled {
		gin.SetMode(cfg.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, svc, sched, cfg)
		srv = httpapi.NewServer(cfg, r)
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("http server failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduler did not stop in time")
	}
	wg.Wait()
	if err := closeSink(); err != nil {
		log.Warn().Err(err).Msg("closing notification sink")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("shutdown complete")
}

// buildSink assembles the notification sinks enabled by cfg. With neither a
// bot nor Pub/Sub configured, messages only go to the log. The returned
// close function releases the Pub/Sub client when there is one.
func buildSink(ctx context.Context, cfg config.Config, sender notify.Sender) (checker.Sink, func() error, error) {
	var sinks notify.Fanout
	closeFn := func() error { return nil }

	if sender != nil {
		sinks = append(sinks, notify.NewTelegram(sender))
	}
	if cfg.PubSub.Enabled() {
		ps, err := notify.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID,
			log.With().Str("component", "pubsub").Logger())
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, ps)
		closeFn = ps.Close
	}

	switch len(sinks) {
	case 0:
		log.Warn().Msg("no BOT_TOKEN or Pub/Sub topic configured; notifications go to the log")
		return notify.LogSink{Log: log.With().Str("component", "notify").Logger()}, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return sinks, closeFn, nil
	}
}
