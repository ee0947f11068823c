package main

import (
	"context"
	"fmt"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/ondrasimku/audio-relay/internal/app"
	"github.com/ondrasimku/audio-relay/internal/config"
	relaylambda "github.com/ondrasimku/audio-relay/internal/lambda"
	"github.com/ondrasimku/audio-relay/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogger(cfg.Log.Level, cfg.Log.Format)

	relay, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	adapter := relaylambda.NewAdapter(relay.Router, relay.Waiter(), logger)
	awslambda.Start(adapter.Handle)
}
