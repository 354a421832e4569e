// Package main запускает HTTP-сервер сервиса происхождения поставок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/provenance-system/internal/catalog"
	"github.com/mmeshcher/provenance-system/internal/config"
	"github.com/mmeshcher/provenance-system/internal/handler"
	"github.com/mmeshcher/provenance-system/internal/ledger"
	"github.com/mmeshcher/provenance-system/internal/metrics"
	"github.com/mmeshcher/provenance-system/internal/middleware"
	"github.com/mmeshcher/provenance-system/internal/notify"
	"github.com/mmeshcher/provenance-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	if cfg.LedgerAddress == "" || cfg.ModuleAddress == "" {
		sugar.Fatalw("ledger address and module address are required")
	}

	reg := metrics.NewRegistry()

	ledgerClient := ledger.NewClient(cfg.LedgerAddress, cfg.ModuleAddress)
	aggregator := catalog.NewAggregator(ledgerClient, cfg.KnownAccounts, logger, reg)

	var notifier service.Notifier
	if cfg.NotifyAddress != "" {
		notifier = notify.NewClient(cfg.NotifyAddress)
	}

	svc := service.NewService(ledgerClient, aggregator, notifier, logger, reg)

	// Первичное наполнение каталога; сбой не фатален, фоновые циклы догонят
	initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := aggregator.Refresh(initCtx); err != nil {
		sugar.Warnw("initial catalog refresh failed", "error", err.Error())
	}
	cancel()

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, aggregator, logger, authMiddleware, reg.Handler())

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового процесса обновления каталога
	g.Go(func() error {
		svc.StartCatalogRefresh(ctx, cfg.RefreshInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting provenance server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
