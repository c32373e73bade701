package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/orchestrator"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskSubmit MessageType = "task.submit"
	MessageTypeTaskEvent  MessageType = "task.event"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskSubmitPayload — заявка на выполнение task.
type TaskSubmitPayload struct {
	Name       string          `json:"name"`
	Type       domain.TaskType `json:"type"`
	TargetURL  string          `json:"target_url"`
	Config     map[string]any  `json:"config,omitempty"`
	Selectors  map[string]any  `json:"selectors,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	MaxRetries int             `json:"max_retries,omitempty"`
}

// TaskEventPayload — событие жизненного цикла task.
type TaskEventPayload struct {
	TaskID     uuid.UUID               `json:"task_id"`
	Event      orchestrator.EventType  `json:"event"`
	Status     domain.TaskStatus       `json:"status"`
	RetryCount int                     `json:"retry_count"`
	Items      int                     `json:"items,omitempty"`
	Error      string                  `json:"error,omitempty"`
	WorkerID   string                  `json:"worker_id,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch := p.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	err = ch.PublishWithContext(
		ctx,
		string(exchange),
		string(routingKey),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
			MessageId:    msg.ID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
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
}

// PublishTaskSubmit публикует заявку на выполнение task.
// Потребитель: harvesterd (SubmitConsumer).
func (p *Publisher) PublishTaskSubmit(ctx context.Context, payload TaskSubmitPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskSubmit,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeySubmit, msg)
}

// PublishTaskEvent публикует событие жизненного цикла task.
// Потребители внешние: уведомления, аналитика.
func (p *Publisher) PublishTaskEvent(ctx context.Context, evt orchestrator.Event) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeTaskEvent,
		Payload: TaskEventPayload{
			TaskID:     evt.Task.ID,
			Event:      evt.Type,
			Status:     evt.Task.Status,
			RetryCount: evt.Task.RetryCount,
			Items:      evt.Task.ItemsScraped,
			Error:      evt.Task.ErrorMessage,
			WorkerID:   evt.Task.WorkerID,
		},
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeyEvent, msg)
}

// BridgeEvents подписывает Publisher на шину событий оркестратора:
// каждое событие жизненного цикла уходит в tasks.events.
func BridgeEvents(bus *orchestrator.EventBus, p *Publisher) {
	bus.SubscribeAll(func(evt orchestrator.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.PublishTaskEvent(ctx, evt); err != nil {
			p.logger.Error("failed to publish task event",
				"event", evt.Type,
				"task_id", evt.Task.ID,
				"error", err,
			)
		}
	})
}
