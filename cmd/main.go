package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/newsquiz-backend/internal/app"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Failed to load .env: %v\n", err)
	}

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := app.LoadConfig(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		log.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		log.Sync()
		os.Exit(1)
	}

	report := a.Run(ctx)
	for _, tr := range report.Topics {
		kv := []interface{}{"run_id", report.RunID, "topic", tr.Topic, "duration", tr.Duration.Round(time.Millisecond)}
		if tr.Err != nil {
			log.Error("Topic failed", append(kv, "error", tr.Err)...)
			continue
		}
		if r := tr.Result; r != nil {
			kv = append(kv,
				"status", r.Status,
				"skip_reason", r.SkipReason,
				"courses", r.Courses,
				"publishable", r.Publishable,
				"partial_batches", r.PartialBatches,
			)
		}
		log.Info("Topic finished", kv...)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Close(shutdownCtx)

	if report.Failed() > 0 {
		os.Exit(1)
	}
}
