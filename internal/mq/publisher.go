package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobCreated MessageType = "job.created"
	MessageTypeJobEvent   MessageType = "job.event"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// JobCreatedPayload — новая job ждёт активации.
type JobCreatedPayload struct {
	JobID uuid.UUID `json:"job_id"`
	Type  string    `json:"type"`
}

// JobEventPayload — результат обработки job.
type JobEventPayload struct {
	JobID        uuid.UUID        `json:"job_id"`
	Type         string           `json:"type"`
	Worker       string           `json:"worker,omitempty"`
	Status       domain.JobStatus `json:"status"`
	Retries      int              `json:"retries"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// EventFromJob собирает JobEventPayload из текущего состояния job.
func EventFromJob(job *domain.Job) JobEventPayload {
	return JobEventPayload{
		JobID:        job.ID,
		Type:         job.Type,
		Worker:       job.Worker,
		Status:       job.Status,
		Retries:      job.Retries,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
	}
}

// eventForStatus возвращает префикс routing key для статуса job.
func eventForStatus(status domain.JobStatus) (string, bool) {
	switch status {
	case domain.JobStatusCompleted:
		return EventCompleted, true
	case domain.JobStatusFailed, domain.JobStatusActivatable:
		return EventFailed, true
	case domain.JobStatusErrorThrown:
		return EventErrorThrown, true
	default:
		return "", false
	}
}

// Publisher публикует сообщения в conveyor.jobs.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJobCreated сообщает воркерам о новой job типа taskType.
func (p *Publisher) PublishJobCreated(ctx context.Context, jobID uuid.UUID, taskType string) error {
	msg := newMessage(MessageTypeJobCreated, JobCreatedPayload{JobID: jobID, Type: taskType})
	return p.Publish(ctx, ExchangeJobs, RoutingKey(EventCreated, taskType), msg)
}

// PublishJobEvent публикует результат обработки job.
// Для незавершённых статусов ничего не публикует.
func (p *Publisher) PublishJobEvent(ctx context.Context, payload JobEventPayload) error {
	event, ok := eventForStatus(payload.Status)
	if !ok {
		return nil
	}

	msg := newMessage(MessageTypeJobEvent, payload)
	return p.Publish(ctx, ExchangeJobs, RoutingKey(event, payload.Type), msg)
}

func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
