package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/miramaps/updown-engine/internal/config"
	cronrunner "github.com/miramaps/updown-engine/internal/cron"
	"github.com/miramaps/updown-engine/internal/db"
	"github.com/miramaps/updown-engine/internal/engine"
	"github.com/miramaps/updown-engine/internal/execution"
	"github.com/miramaps/updown-engine/internal/gamma"
	"github.com/miramaps/updown-engine/internal/handler"
	"github.com/miramaps/updown-engine/internal/logger"
	gormrepository "github.com/miramaps/updown-engine/internal/repository/gorm"
	"github.com/miramaps/updown-engine/internal/streaming"
	"github.com/miramaps/updown-engine/internal/supervisor"
	"github.com/miramaps/updown-engine/internal/tradewriter"
)

func main() {
	cfgPath := os.Getenv("UPDOWN_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("UPDOWN_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.Store)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	repo := gormrepository.New(dbConn.Gorm)
	writer := tradewriter.New(repo, log)

	var execPort engine.ExecutionPort
	switch strings.ToLower(cfg.Executor.Mode) {
	case "live":
		execPort = execution.NewLive(cfg.Executor.BinaryPath, cfg.Executor.Timeout, log).
			WithMaxOrderSize(cfg.Executor.MaxOrderSizeUSD)
	default:
		execPort = execution.NewSimulated()
	}

	eng := engine.New(engine.Config{
		EntryThreshold:    cfg.Engine.EntryThreshold,
		Shares:            cfg.Engine.Shares,
		DCAEnabled:        cfg.Engine.DCAEnabled,
		DCALevels:         cfg.Engine.DCALevels,
		DCAMultiplier:     cfg.Engine.DCAMultiplier,
		SumTarget:         cfg.Engine.SumTarget,
		BreakevenEnabled:  cfg.Engine.BreakevenEnabled,
		WindowMinutes:     cfg.Engine.WindowMinutes,
		DumpWindowSeconds: cfg.Engine.DumpWindowSeconds,
		CooldownSeconds:   cfg.Engine.CooldownSeconds,
	}, execPort, writer, log, cfg.Engine.StartingCash)
	eng.Start()

	gammaClient := gamma.NewClient(cfg.Gamma.BaseURL, cfg.Gamma.Timeout)
	super := supervisor.New(eng, gammaClient, repo, log, cfg.Cron.RotationLookahead, cfg.Engine.DumpWindowSeconds)

	streamAdapter := streaming.NewAdapter(streaming.Options{
		URL:               cfg.Stream.URL,
		AssetIDProvider:   super.CurrentTokenIDs,
		RefreshInterval:   cfg.Stream.RefreshInterval,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		PingTimeout:       cfg.Stream.PingTimeout,
		BackoffMin:        cfg.Stream.BackoffMin,
		BackoffMax:        cfg.Stream.BackoffMax,
		Logger:            log,
	})
	super.SetAdapter(streamAdapter)

	router := gin.New()
	router.Use(gin.Recovery())
	(&handler.EngineHandler{Engine: eng}).Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		writer.Run(ctx)
	}()

	go func() {
		super.Run(ctx)
	}()

	go func() {
		if err := streamAdapter.Run(ctx, func(tokenID string, snap streaming.BookSnapshot) {
			eng.ApplyBook(tokenID, snap.ToEngine(tokenID))
		}); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("price stream adapter stopped", zap.Error(err))
		}
	}()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(log, ctx)
		if _, err := cronRunner.Add(cfg.Cron.StalenessCheck, func(jobCtx context.Context) {
			super.CheckStaleness(jobCtx, cfg.Stream.StaleAfter)
		}); err != nil {
			log.Warn("failed to schedule staleness check", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}
	stop()

	writer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
