package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/app"
	"github.com/galpao/wms/internal/version"
)

func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if level, err := log.ParseLevel(os.Getenv("WMS_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
}

func main() {
	// Local development keeps its settings in .env; absence is fine.
	_ = godotenv.Load()
	setupLogger()

	cfg := app.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"api_addr": cfg.APIAddr,
		"ops_addr": cfg.OpsAddr,
		"version":  version.String(),
	}).Info("starting warehouse service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("service exited with error")
	}

	log.Info("warehouse service stopped")
}
