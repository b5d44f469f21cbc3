package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"riskfeed/config"
	"riskfeed/internal/options/feed"
	"riskfeed/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to config/config.yaml)")
	flag.Parse()

	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run feed
	if err := feed.Start(ctx, cfg, log); err != nil {
		log.Fatal("risk feed failed", zap.Error(err))
	}
	log.Info("risk feed stopped")
}
