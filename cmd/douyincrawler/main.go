// Package main wires together the crawler service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/api"
	"github.com/openharvest/douyin-crawler/internal/browser"
	"github.com/openharvest/douyin-crawler/internal/client"
	"github.com/openharvest/douyin-crawler/internal/config"
	"github.com/openharvest/douyin-crawler/internal/crawler"
	"github.com/openharvest/douyin-crawler/internal/douyin"
	"github.com/openharvest/douyin-crawler/internal/logging"
	"github.com/openharvest/douyin-crawler/internal/metrics"
	"github.com/openharvest/douyin-crawler/internal/session"
	"github.com/openharvest/douyin-crawler/internal/signer"
	"github.com/openharvest/douyin-crawler/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	browse, err := browser.New(ctx, browser.Config{
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		NavTimeout:  cfg.NavTimeout(),
	})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer browse.Close()

	sign := signer.NewPageSigner(browse, cfg.Signer.Function)
	apiClient, err := client.New(client.Config{
		Timeout: cfg.RequestTimeout(),
		Proxy:   cfg.HTTP.Proxy,
	}, browse, sign, logger.Named("client"))
	if err != nil {
		return fmt.Errorf("build api client: %w", err)
	}
	if err := apiClient.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap api client: %w", err)
	}

	media, err := client.NewMediaFetcher(client.MediaConfig{
		Timeout: cfg.RequestTimeout(),
		Proxy:   cfg.HTTP.Proxy,
	}, logger.Named("media"))
	if err != nil {
		return fmt.Errorf("build media fetcher: %w", err)
	}

	sessions := session.New(browse, apiClient, session.Strategy(cfg.Login.Strategy), cfg.Login.Cookies, logger.Named("session"))

	db, err := store.New(store.Config{
		DBPath:   cfg.Storage.DBPath,
		VideoDir: cfg.Storage.VideoDir,
		ImageDir: cfg.Storage.ImageDir,
	}, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("store close failed", zap.Error(closeErr))
		}
	}()

	orchestrator := crawler.New(ctx, crawler.Config{
		StartPage:       cfg.Crawler.StartPage,
		Concurrency:     cfg.Crawler.Concurrency,
		Sleep:           cfg.PageSleep(),
		PublishTime:     douyin.PublishTime(cfg.Crawler.PublishTime),
		DefaultMaxItems: cfg.Crawler.MaxItems,
	}, apiClient, db, media, sessions, logger.Named("crawler"))

	apiServer := api.NewServer(orchestrator, db, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// A crawl configured at startup runs without waiting for an admin call.
	if req, ok := startupRequest(cfg); ok {
		if err := orchestrator.Start(req); err != nil {
			logger.Warn("startup crawl not started", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")
	orchestrator.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// startupRequest translates the crawler config section into an initial crawl,
// if one is configured. Keywords win over video refs, which win over creator
// refs.
func startupRequest(cfg config.Config) (crawler.Request, bool) {
	base := crawler.Request{
		MaxItems:      cfg.Crawler.MaxItems,
		DownloadMedia: cfg.Crawler.Media,
	}
	switch {
	case cfg.Crawler.Keywords != "":
		base.Mode = crawler.ModeSearch
		base.Keywords = cfg.Crawler.Keywords
	case len(cfg.Crawler.VideoRefs) > 0:
		base.Mode = crawler.ModeDetail
		base.VideoRefs = cfg.Crawler.VideoRefs
	case len(cfg.Crawler.CreatorRefs) > 0:
		base.Mode = crawler.ModeCreator
		base.CreatorRefs = cfg.Crawler.CreatorRefs
	default:
		return crawler.Request{}, false
	}
	return base, true
}
