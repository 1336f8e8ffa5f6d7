package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/IBM/sarama"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
)

type MessageHandler func(ctx context.Context, msg *sarama.ConsumerMessage) error

// ConsumerGroupHandler marks every message after the handler returns, even
// on error; a poison message is logged and skipped.
type ConsumerGroupHandler struct {
	handle MessageHandler
}

func NewConsumerGroupHandler(handle MessageHandler) ConsumerGroupHandler {
	return ConsumerGroupHandler{handle: handle}
}

func (ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(session.Context(), msg); err != nil {
				log.Printf("[kafka] handle message topic=%s partition=%d offset=%d: %v",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// StatusEvents decodes order status-change events before passing them on.
func StatusEvents(fn func(ctx context.Context, ev models.StatusChangedEvent) error) MessageHandler {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		var ev models.StatusChangedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return fmt.Errorf("decode status event: %w", err)
		}
		return fn(ctx, ev)
	}
}

func NewConsumerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return cfg
}

func StartSaramaConsumer(ctx context.Context, cfg *sarama.Config, brokers []string, groupID string, topics []string, handle MessageHandler) error {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			log.Printf("[kafka] close consumer group: %v", err)
		}
	}()

	handler := NewConsumerGroupHandler(handle)

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Printf("[kafka] error from consumer: %v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
