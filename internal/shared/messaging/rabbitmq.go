package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RabbitBus binds the event bus to a RabbitMQ topic exchange. Each saga topic
// maps to a routing key and each (group, topic) pair to a durable queue, so a
// service group receives every event once. Ordering holds per queue, which is
// weaker than Kafka's per-key guarantee; consumers only rely on per-order
// ordering within a topic, which a single queue preserves.
type RabbitBus struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	isClosing bool
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewRabbitBus(url, exchange string, logger *zap.Logger) *RabbitBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RabbitBus{
		url:      url,
		exchange: exchange,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (b *RabbitBus) Connect(retries int, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for i := 0; i < retries; i++ {
		b.conn, err = amqp.Dial(b.url)
		if err != nil {
			b.logger.Warn("RabbitMQ connection error",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", retries),
				zap.Error(err))
			if i < retries-1 {
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}

		b.channel, err = b.conn.Channel()
		if err != nil {
			b.conn.Close()
			return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
		}

		err = b.channel.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil)
		if err != nil {
			b.channel.Close()
			b.conn.Close()
			return fmt.Errorf("failed to declare exchange: %w", err)
		}

		go b.handleReconnection(retries, delay)
		b.logger.Info("Connected to RabbitMQ", zap.String("exchange", b.exchange))
		return nil
	}

	return err
}

func (b *RabbitBus) handleReconnection(retries int, delay time.Duration) {
	notifyClose := make(chan *amqp.Error)
	b.conn.NotifyClose(notifyClose)

	select {
	case err := <-notifyClose:
		b.mu.RLock()
		closing := b.isClosing
		b.mu.RUnlock()
		if !closing {
			b.logger.Warn("RabbitMQ connection lost, reconnecting", zap.Error(err))
			time.Sleep(delay)
			if reconnectErr := b.Connect(retries, delay); reconnectErr != nil {
				b.logger.Error("RabbitMQ reconnect failed", zap.Error(reconnectErr))
			}
		}
	case <-b.ctx.Done():
	}
}

func (b *RabbitBus) Publish(ctx context.Context, topic, key string, event interface{}) error {
	body, err := encode(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	channel := b.channel
	b.mu.RUnlock()
	if channel == nil {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err = channel.Publish(b.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			"partition_key": key,
		},
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish error on %s: %w", topic, err)
	}

	b.logger.Info("Event published",
		zap.String("topic", topic),
		zap.String("key", key))
	return nil
}

func (b *RabbitBus) Subscribe(topic, group string, handler Handler) error {
	b.mu.RLock()
	channel := b.channel
	b.mu.RUnlock()
	if channel == nil {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	queueName := fmt.Sprintf("%s.%s", group, topic)
	queue, err := channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare error: %w", err)
	}

	if err := channel.QueueBind(queue.Name, topic, b.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind error (%s): %w", topic, err)
	}

	deliveries, err := channel.Consume(queue.Name, group, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume start error: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-deliveries:
				if !ok {
					return
				}
				b.handleDelivery(topic, msg, handler)
			case <-b.ctx.Done():
				return
			}
		}
	}()

	b.logger.Info("Consuming events",
		zap.String("queue", queue.Name),
		zap.String("topic", topic))
	return nil
}

func (b *RabbitBus) handleDelivery(topic string, msg amqp.Delivery, handler Handler) {
	key, _ := msg.Headers["partition_key"].(string)

	err := handler(b.ctx, Message{Topic: topic, Key: key, Value: msg.Body})
	if err != nil {
		b.logger.Error("Event handler error",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
		// Requeue for redelivery; the ledger makes the replay safe.
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
}

func (b *RabbitBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosing {
		return nil
	}
	b.isClosing = true
	b.cancel()

	var closeErr error
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			closeErr = fmt.Errorf("channel close error: %w", err)
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			closeErr = fmt.Errorf("connection close error: %w", err)
		}
	}
	return closeErr
}
