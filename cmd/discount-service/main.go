// Command discount-service обслуживает расчет скидок и обогащение товаров поверх шины сообщений.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/config"
	"github.com/akriventsev/potter-commerce/framework/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("POTTER_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "discount-service: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Production:  cfg.Log.Production,
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		shutdown(app, cfg.Gateway.ShutdownDeadline, log)
		return err
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-app.Errors():
		log.Error("http server failed", zap.Error(err))
	}

	shutdown(app, cfg.Gateway.ShutdownDeadline, log)
	return nil
}

func shutdown(app *App, deadline time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	if err := app.Stop(ctx); err != nil {
		log.Error("shutdown finished with errors", zap.Error(err))
		return
	}
	log.Info("discount service stopped")
}
