package service

import (
	"context"

	"gitlab.ozon.dev/qwestard/atabuy/internal/kafka"
)

// DirectOutbox publishes straight to the broker. It is used when orders
// live in the JSON file and there is no tasks table to relay from.
type DirectOutbox struct {
	Publisher kafka.Publisher
	Topic     string
}

func (o DirectOutbox) CreateTask(_ context.Context, orderID string, payload []byte) error {
	return o.Publisher.Publish(o.Topic, orderID, payload)
}
