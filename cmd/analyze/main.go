package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/app"
	"github.com/staylens/staylens/internal/config"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.LoadFromEnv()

	dataDir := flag.String("data", cfg.DataDir, "directory holding listings_<year>.csv files")
	years := flag.String("years", "", "comma-separated years to analyze (overrides YEARS)")
	flag.Parse()

	cfg.DataDir = *dataDir
	if *years != "" {
		cfg.Years = parseYears(*years)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		logger.Fatal("Analysis failed", zap.Error(err))
	}
}

func parseYears(s string) []int {
	var out []int
	for _, item := range strings.Split(s, ",") {
		if y, err := strconv.Atoi(strings.TrimSpace(item)); err == nil {
			out = append(out, y)
		}
	}
	return out
}
