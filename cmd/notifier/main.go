package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/infra"
)

// notifier consumes security events off Kafka and emits operator alerts.
// It is the delivery end of the outbox: everything it sees has already been
// committed by the API.

var topics = []domain.EventType{
	domain.EventIncidentRaised,
	domain.EventIdentityBanned,
	domain.EventExportSubmitted,
	domain.EventExportApproved,
	domain.EventExportRejected,
	domain.EventRetentionRun,
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("notifier failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("notifier requires KAFKA_ENABLED=true")
	}

	var wg sync.WaitGroup
	for _, topic := range topics {
		consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, string(topic), "sentinel-notifier", true, logger)

		wg.Add(1)
		go func(topic domain.EventType, consumer *infra.KafkaConsumer) {
			defer wg.Done()
			defer consumer.Close()
			consume(ctx, topic, consumer, logger)
		}(topic, consumer)
	}

	logger.Info("notifier started", "topics", len(topics))
	wg.Wait()
	logger.Info("notifier stopped")
	return nil
}

func consume(ctx context.Context, topic domain.EventType, consumer *infra.KafkaConsumer, logger *slog.Logger) {
	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			logger.Error("read message", "topic", topic, "error", err)
			continue
		}

		var draft domain.OutboxDraft
		if err := json.Unmarshal(msg.Value, &draft); err != nil {
			logger.Error("malformed event dropped", "topic", topic, "error", err)
			continue
		}
		notify(topic, &draft, logger)
	}
}

// notify is the alert sink. Critical incidents and identity bans log at
// error level so downstream log-based alerting pages on them.
func notify(topic domain.EventType, draft *domain.OutboxDraft, logger *slog.Logger) {
	switch topic {
	case domain.EventIncidentRaised, domain.EventIdentityBanned:
		logger.Error("security alert",
			"event_type", draft.EventType,
			"aggregate_id", draft.AggregateID,
			"payload", draft.Payload,
		)
	default:
		logger.Info("governance event",
			"event_type", draft.EventType,
			"aggregate_id", draft.AggregateID,
			"payload", draft.Payload,
		)
	}
}
