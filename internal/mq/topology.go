package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeTasks Exchange = "harvester.tasks"
	ExchangeDLQ   Exchange = "harvester.dlq"
)

// Queues.
const (
	// QueueTasksSubmit — входящие заявки на выполнение tasks.
	QueueTasksSubmit Queue = "tasks.submit"

	// QueueTasksEvents — события жизненного цикла tasks.
	QueueTasksEvents Queue = "tasks.events"

	// QueueDLQSubmit — необработанные submissions.
	QueueDLQSubmit Queue = "dlq.submit"
)

// Routing keys.
const (
	RoutingKeySubmit    RoutingKey = "submit"
	RoutingKeyEvent     RoutingKey = "event"
	RoutingKeyDLQSubmit RoutingKey = "submit"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Идемпотентна: повторное объявление существующей топологии — no-op.
func SetupTopology(conn *Connection) error {
	ch := conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	if err := declareExchanges(ch); err != nil {
		return err
	}
	if err := declareQueues(ch); err != nil {
		return err
	}
	return bindQueues(ch)
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeTasks, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Непринятые submissions уходят в DLQ для ручного разбора.
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQSubmit),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueTasksSubmit, dlqArgs},
		{QueueTasksEvents, nil},
		{QueueDLQSubmit, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTasksSubmit, RoutingKeySubmit, ExchangeTasks},
		{QueueTasksEvents, RoutingKeyEvent, ExchangeTasks},
		{QueueDLQSubmit, RoutingKeyDLQSubmit, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}
