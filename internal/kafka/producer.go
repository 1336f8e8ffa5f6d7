package kafka

import (
	"log"
	"time"

	"github.com/IBM/sarama"
)

type Publisher interface {
	Publish(topic, key string, message []byte) error
}

type SaramaProducer struct {
	producer sarama.SyncProducer
}

var _ Publisher = (*SaramaProducer)(nil)

func NewSaramaProducer(brokers []string) (*SaramaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewProducer(prod), nil
}

func NewProducer(prod sarama.SyncProducer) *SaramaProducer {
	return &SaramaProducer{producer: prod}
}

// Publish keys messages by order id so every event of one order lands on the
// same partition.
func (p *SaramaProducer) Publish(topic, key string, message []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		log.Printf("[kafka] failed to send message to topic %s: %v", topic, err)
		return err
	}
	log.Printf("[kafka] message stored in topic(%s)/partition(%d)/offset(%d)", topic, partition, offset)
	return nil
}

func (p *SaramaProducer) Close() error {
	return p.producer.Close()
}
