// Package kafka streams ledger events to the campus analytics pipeline.
// Publishing is best-effort and happens after commit; consumers must treat
// the stream as at-least-once.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"campus-loyalty/internal/ledger"
	"campus-loyalty/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writers  map[string]*kafka.Writer
	log      *logger.Logger
	mockMode bool
}

// NewProducer creates a producer with one writer per ledger topic. In mock
// mode nothing is sent; events are only logged, which keeps local
// development broker-free.
func NewProducer(brokers []string, mockMode bool, log *logger.Logger) *Producer {
	p := &Producer{
		writers:  make(map[string]*kafka.Writer),
		log:      log,
		mockMode: mockMode,
	}

	if !mockMode {
		for _, topic := range []string{TopicTransactionCreated, TopicSuspiciousFlag, TopicRedemptionProcessed} {
			p.writers[topic] = kafka.NewWriter(kafka.WriterConfig{
				Brokers: brokers,
				Topic:   topic,
			})
		}
	}

	return p
}

func (p *Producer) publish(topic string, view ledger.TransactionView) error {
	msgBytes, err := json.Marshal(view)
	if err != nil {
		return err
	}

	if p.log != nil {
		p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("transaction #%d", view.ID))
	}

	if p.mockMode {
		return nil
	}

	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer for topic %s", topic)
	}

	return writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(strconv.FormatInt(view.ID, 10)),
			Value: msgBytes,
		},
	)
}

func (p *Producer) PublishTransactionCreated(view ledger.TransactionView) error {
	return p.publish(TopicTransactionCreated, view)
}

func (p *Producer) PublishSuspiciousFlagSet(view ledger.TransactionView) error {
	return p.publish(TopicSuspiciousFlag, view)
}

func (p *Producer) PublishRedemptionProcessed(view ledger.TransactionView) error {
	return p.publish(TopicRedemptionProcessed, view)
}

func (p *Producer) Close() error {
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			return err
		}
	}
	return nil
}
