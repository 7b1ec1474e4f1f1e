// Command replay drains a dead letter queue back through its delivery
// channels.
//
// Usage:
//
//	replay --topic=notifications [--limit=50]
//
// The run is bounded by REPLAY_BUDGET (default 30s) and always exits 0;
// per-message failures are counted and reported, not fatal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"

	"github.com/eventfuse/eventfuse/config"
	"github.com/eventfuse/eventfuse/internal/database"
	"github.com/eventfuse/eventfuse/internal/delivery"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/replay"
	"github.com/eventfuse/eventfuse/internal/secrets"
	"github.com/eventfuse/eventfuse/internal/store"
)

func main() {
	topic := flag.String("topic", "", "original topic whose DLQ should be drained (required)")
	limit := flag.Int("limit", 0, "maximum messages to process, 0 for unlimited")
	flag.Parse()

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "Usage: replay --topic=<name> [--limit=N]")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	redisClient, err := queue.NewRedisClient(cfg.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
		os.Exit(1)
	}
	if redisClient == nil {
		fmt.Fprintln(os.Stderr, "REDIS_URL is required: an in-memory DLQ has nothing to replay")
		os.Exit(1)
	}
	defer redisClient.Close()
	dlq := queue.NewRedisDLQ(redisClient)

	// Redelivery needs the rule store and the channel senders the server
	// uses, wired the same way.
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close(ctx)
	eventStore := store.New(db)

	httpClient := resty.New().SetTimeout(cfg.Collector.FetchTimeout)
	secretCache := secrets.NewCache(secrets.EnvProvider{}, cfg.Secrets.CacheTTL)
	deliverer := delivery.New(eventStore, dlq, cfg.Delivery,
		delivery.NewTelegramSender(httpClient, secretCache, ""),
		delivery.NewLineSender(httpClient, secretCache, ""),
		delivery.NewSlackSender(httpClient, secretCache),
		delivery.NewWebhookSender(httpClient),
		delivery.NewEmailSender(httpClient, secretCache, os.Getenv("EMAIL_RELAY_URL")),
	)

	runner := replay.New(dlq, deliverer, cfg.Replay.MaxRetries)

	summary, err := runner.Run(ctx, *topic, *limit, cfg.Replay.Budget)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Replayed: %d, Skipped: %d, Errors: %d\n", summary.Replayed, summary.Skipped, summary.Errors)
}
