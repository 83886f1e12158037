// Worker consumes notification messages from Kafka and delivers them through the HTTP mail relay.
// Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID and RELAY_URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"identity-portal/internal/config"
	"identity-portal/internal/logging"
	"identity-portal/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat).With("component", "notify-worker")

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		fmt.Fprintln(os.Stderr, "worker: KAFKA_BROKERS is required")
		os.Exit(1)
	}
	if cfg.RelayURL == "" {
		fmt.Fprintln(os.Stderr, "worker: RELAY_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := notify.NewKafkaReader(brokers, cfg.NotifyKafkaTopic, cfg.KafkaGroupID)
	defer reader.Close()

	log.Info(ctx, "consuming", "topic", cfg.NotifyKafkaTopic, "group", cfg.KafkaGroupID)
	relay := notify.NewRelayClient(cfg.RelayURL, cfg.RelayAPIKey, cfg.MailFrom)
	if err := notify.NewWorker(reader, relay, log).Run(ctx); err != nil {
		log.Error(context.Background(), "worker stopped", "error", err)
		os.Exit(1)
	}
	log.Info(context.Background(), "worker stopped")
}
