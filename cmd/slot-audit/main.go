// Command slot-audit consumes slot lifecycle events and appends them to
// an audit log.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Facats/slotwatcherss/internal/logging"
	"github.com/Facats/slotwatcherss/internal/queue"
)

func main() {
	_ = godotenv.Load()
	logging.Init(logging.Config{
		Format:    os.Getenv("LOG_FORMAT"),
		Level:     os.Getenv("LOG_LEVEL"),
		Component: "slot-audit",
	})

	path := os.Getenv("AUDIT_LOG_PATH")
	if path == "" {
		path = filepath.Join("logs", "slots.log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", queue.SlotQueueName).Str("path", path).Msg("slot-audit consuming")
	err := queue.AuditConsumer{URL: os.Getenv("RABBITMQ_URL"), LogPath: path}.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("slot-audit stopped")
	}
}
