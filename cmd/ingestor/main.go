package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/config"
	cronrunner "github.com/slmiksa/pocket-autotrader-hub-sub001/internal/cron"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/db"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/handler"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/ingest"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/logger"
	gormrepository "github.com/slmiksa/pocket-autotrader-hub-sub001/internal/repository/gorm"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/settings"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/telegram"
)

func main() {
	cfgPath := os.Getenv("HUB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("HUB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &settings.Service{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default feature switches failed", zap.Error(err))
	}

	source := buildSource(cfg, logger)

	reconciler := &ingest.Reconciler{
		Repo:        store,
		Logger:      logger,
		Lookback:    cfg.Ingest.Lookback,
		EntryWindow: cfg.Ingest.EntryWindow,
	}
	ingestor := &ingest.Ingestor{
		Source:            source,
		Repo:              store,
		State:             settingsSvc,
		Reconciler:        reconciler,
		Logger:            logger,
		LockTTL:           cfg.Ingest.LockTTL,
		InitialOffset:     cfg.Ingest.InitialOffset,
		EmptyStreakLimit:  cfg.Ingest.EmptyStreakLimit,
		EmptyStreakWindow: cfg.Ingest.EmptyStreakWindow,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORSMiddleware())
	engine.Use(handler.RequireBearerMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(engine)
	ingestHandler := &handler.IngestHandler{Ingestor: ingestor, Settings: settingsSvc, Logger: logger}
	ingestHandler.Register(engine)
	signalHandler := &handler.SignalHandler{Repo: store}
	signalHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.Ingest, func(ctx context.Context) {
			if !settingsSvc.IsEnabled(ctx, settings.FeatureTelegramIngest, true) {
				return
			}
			summary, err := ingestor.Run(ctx)
			if err != nil {
				logger.Warn("cron ingest cycle failed", zap.Error(err))
				return
			}
			if summary.Skipped || summary.MessagesChecked == 0 {
				return
			}
			logger.Info("cron ingest cycle ok",
				zap.Int("messages", summary.MessagesChecked),
				zap.Int("signals", summary.SignalsFound),
				zap.Int("results", summary.ResultsUpdated),
			)
		})
		if err != nil {
			logger.Warn("cron register ingest failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildSource prefers the bot API; the archive scrape is only used when it
// is explicitly enabled and no bot token is configured.
func buildSource(cfg config.Config, logger *zap.Logger) ingest.Source {
	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("HUB_TELEGRAM_TOKEN"))
	}
	if token != "" {
		client := telegram.NewClient(&http.Client{Timeout: cfg.Telegram.Timeout}, cfg.Telegram.BaseURL, token)
		return &telegram.BotSource{
			Client:      client,
			BatchLimit:  cfg.Telegram.BatchLimit,
			PollTimeout: cfg.Telegram.PollTimeout,
		}
	}
	if cfg.Archive.Enabled && cfg.Archive.URL != "" {
		logger.Info("no bot token, using archive source", zap.String("url", cfg.Archive.URL))
		return &telegram.ArchiveSource{
			HTTP: &http.Client{Timeout: cfg.Archive.Timeout},
			URL:  cfg.Archive.URL,
		}
	}
	logger.Fatal("no upstream source configured: set HUB_TELEGRAM_TOKEN or enable the archive source")
	return nil
}
