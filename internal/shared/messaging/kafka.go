package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaBus publishes with the message key hashed to a partition, so all
// events for one order land on the same partition and arrive in order.
type KafkaBus struct {
	brokers []string
	logger  *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
}

func NewKafkaBus(brokers []string, logger *zap.Logger) *KafkaBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		brokers: brokers,
		logger:  logger,
		writers: make(map[string]*kafka.Writer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *KafkaBus) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(b.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	b.writers[topic] = w
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, topic, key string, event interface{}) error {
	body, err := encode(event)
	if err != nil {
		return err
	}

	err = b.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("kafka publish error on %s: %w", topic, err)
	}

	b.logger.Info("Event published",
		zap.String("topic", topic),
		zap.String("key", key))
	return nil
}

func (b *KafkaBus) Subscribe(topic, group string, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			msg, err := reader.FetchMessage(b.ctx)
			if err != nil {
				if b.ctx.Err() != nil {
					return
				}
				b.logger.Error("Kafka fetch error",
					zap.String("topic", topic),
					zap.Error(err))
				continue
			}

			err = handler(b.ctx, Message{
				Topic: topic,
				Key:   string(msg.Key),
				Value: msg.Value,
			})
			if err != nil {
				// Leave the offset uncommitted; the message is redelivered
				// and the handler's ledger check makes the replay safe.
				b.logger.Error("Event handler error",
					zap.String("topic", topic),
					zap.String("key", string(msg.Key)),
					zap.Error(err))
				continue
			}

			if err := reader.CommitMessages(b.ctx, msg); err != nil && b.ctx.Err() == nil {
				b.logger.Error("Kafka commit error",
					zap.String("topic", topic),
					zap.Error(err))
			}
		}
	}()

	b.logger.Info("Consuming events",
		zap.String("topic", topic),
		zap.String("group", group))
	return nil
}

func (b *KafkaBus) Close() error {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	var closeErr error
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			closeErr = err
		}
	}
	for _, w := range b.writers {
		if err := w.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
