package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение.
// Ошибка — nack с возвратом в очередь; ошибка, соответствующая
// ErrInvalidPayload, — nack без возврата (в DLQ, если она настроена).
type Handler func(ctx context.Context, msg *Message) error

// ErrInvalidPayload — payload сообщения не разбирается в ожидаемый тип.
var ErrInvalidPayload = errors.New("invalid message payload")

// Consumer потребляет сообщения из очереди с переподключением.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	setup    func(ch *amqp.Channel) (string, error)
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя существующей очереди. Игнорируется, если задан Setup.
	Queue string

	// Setup объявляет очередь на свежем канале и возвращает её имя.
	// Вызывается при каждом (пере)подключении.
	Setup func(ch *amqp.Channel) (string, error)

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — сколько сообщений брокер отдаёт без ack (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		setup:    cfg.Setup,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Run потребляет сообщения до отмены ctx.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, queue, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", queue)
			if err := c.process(ctx, queue, deliveries); ctx.Err() != nil {
				return ctx.Err()
			} else if err != nil {
				c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", queue)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, string, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, "", ErrNoChannel
	}

	queue := c.queue
	if c.setup != nil {
		name, err := c.setup(ch)
		if err != nil {
			return nil, "", err
		}
		queue = name
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, queue, nil
}

func (c *Consumer) process(ctx context.Context, queue string, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handle(ctx, queue, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, queue string, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", queue,
			"error", err,
			"body", string(raw.Body),
		)
		_ = raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.Error("handler failed",
			"queue", queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		_ = raw.Nack(false, !errors.Is(err, ErrInvalidPayload))
		return
	}

	_ = raw.Ack(false)
}

// ParsePayload переводит payload сообщения в тип T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("%w: marshal: %v", ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return result, nil
}

// WakeHandler возвращает Handler, который для каждого job.created
// вызывает notify с типом task.
func WakeHandler(notify func(taskType string)) Handler {
	return func(_ context.Context, msg *Message) error {
		if msg.Type != MessageTypeJobCreated {
			return nil
		}
		payload, err := ParsePayload[JobCreatedPayload](msg)
		if err != nil {
			return err
		}
		notify(payload.Type)
		return nil
	}
}
