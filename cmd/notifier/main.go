package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gitlab.ozon.dev/qwestard/atabuy/internal/config"
	"gitlab.ozon.dev/qwestard/atabuy/internal/kafka"
	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle := kafka.StatusEvents(func(_ context.Context, ev models.StatusChangedEvent) error {
		from := models.Describe(ev.OldStatus).Label
		to := models.Describe(ev.NewStatus).Label
		if ev.NewStatus == models.StatusCancelled && ev.Reason != "" {
			log.Printf("[notifier] order %s: %s -> %s (%s)", ev.OrderID, from, to, ev.Reason)
			return nil
		}
		log.Printf("[notifier] order %s: %s -> %s", ev.OrderID, from, to)
		return nil
	})

	log.Printf("[notifier] consuming %s as %s", cfg.KafkaTopic, cfg.KafkaGroupID)
	err := kafka.StartSaramaConsumer(ctx, kafka.NewConsumerConfig(), cfg.KafkaBrokers,
		cfg.KafkaGroupID, []string{cfg.KafkaTopic}, handle)
	if err != nil {
		log.Fatalf("Notifier stopped: %v", err)
	}
}
