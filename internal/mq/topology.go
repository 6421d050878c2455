package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// Exchanges.
const (
	ExchangeJobs Exchange = "conveyor.jobs"
	ExchangeDLQ  Exchange = "conveyor.dlq"
)

// Queues.
const (
	QueueJobEvents Queue = "jobs.events"
	QueueDLQEvents Queue = "dlq.events"
)

// Префиксы routing key: <event>.<task type>.
const (
	EventCreated     = "created"
	EventCompleted   = "completed"
	EventFailed      = "failed"
	EventErrorThrown = "error_thrown"
)

const routingKeyDLQ = "events"

// RoutingKey собирает ключ маршрутизации события для типа task.
func RoutingKey(event, taskType string) string {
	return event + "." + taskType
}

// SetupTopology объявляет exchanges, общие очереди и их привязки.
// Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []struct {
			name Exchange
			kind string
		}{
			{ExchangeJobs, amqp.ExchangeTopic},
			{ExchangeDLQ, amqp.ExchangeDirect},
		} {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		// jobs.events — результаты jobs для внешних потребителей; битые сообщения уходят в DLQ.
		eventsArgs := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": routingKeyDLQ,
		}
		if _, err := ch.QueueDeclare(string(QueueJobEvents), true, false, false, false, eventsArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueJobEvents, err)
		}
		if _, err := ch.QueueDeclare(string(QueueDLQEvents), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueDLQEvents, err)
		}

		bindings := []struct {
			queue    Queue
			key      string
			exchange Exchange
		}{
			{QueueJobEvents, EventCompleted + ".#", ExchangeJobs},
			{QueueJobEvents, EventFailed + ".#", ExchangeJobs},
			{QueueJobEvents, EventErrorThrown + ".#", ExchangeJobs},
			{QueueDLQEvents, routingKeyDLQ, ExchangeDLQ},
		}
		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), b.key, string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// WakeQueueSetup возвращает функцию, объявляющую эксклюзивную очередь воркера,
// привязанную к created.<type> для каждого из taskTypes.
//
// Очередь удаляется брокером вместе с соединением, поэтому consumer
// вызывает её заново после каждого переподключения.
func WakeQueueSetup(workerName string, taskTypes []string) func(ch *amqp.Channel) (string, error) {
	return func(ch *amqp.Channel) (string, error) {
		q, err := ch.QueueDeclare(
			"",    // имя генерирует брокер
			false, // durable
			true,  // auto-delete
			true,  // exclusive
			false, // no-wait
			amqp.Table{"x-conveyor-worker": workerName},
		)
		if err != nil {
			return "", fmt.Errorf("declare wake queue: %w", err)
		}

		for _, taskType := range taskTypes {
			key := RoutingKey(EventCreated, taskType)
			if err := ch.QueueBind(q.Name, key, string(ExchangeJobs), false, nil); err != nil {
				return "", fmt.Errorf("bind wake queue to %s: %w", key, err)
			}
		}
		return q.Name, nil
	}
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conveyor RabbitMQ Topology:

    conveyor.jobs (topic)
    ├── amq.gen-* [routing: created.<type>]       exclusive, one per worker
    │       Consumer: Worker (wakes idle dispatch loop)
    └── jobs.events [routing: completed.# failed.# error_thrown.#]
            DLQ: dlq.events

    conveyor.dlq (direct)
    └── dlq.events [routing: events]
            Manual processing
  `
}
