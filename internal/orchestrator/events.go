package orchestrator

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/shaiso/Harvester/internal/domain"
)

// EventType — тип события жизненного цикла task.
type EventType string

const (
	// EventTaskStarted — task взят в выполнение.
	EventTaskStarted EventType = "task_started"

	// EventTaskCompleted — task успешно завершён.
	EventTaskCompleted EventType = "task_completed"

	// EventTaskFailed — task упал окончательно.
	EventTaskFailed EventType = "task_failed"

	// EventTaskRetry — task поставлен на повтор.
	EventTaskRetry EventType = "task_retry"
)

// Event — событие со снимком task на момент эмиссии.
type Event struct {
	Type EventType
	Task domain.Task
}

// Listener получает события жизненного цикла.
// Вызывается синхронно из пути диспетчеризации: долгую работу
// слушатель делает сам, в своей горутине.
type Listener func(Event)

// EventBus — широковещательная рассылка событий подписчикам.
//
// Ошибки и паники слушателей изолируются: логируются и не мешают
// ни остальным слушателям, ни циклу диспетчеризации.
type EventBus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[EventType][]Listener
}

// NewEventBus создаёт пустую шину.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		logger:    logger,
		listeners: make(map[EventType][]Listener),
	}
}

// Subscribe регистрирует слушателя на тип события.
func (b *EventBus) Subscribe(event EventType, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[event] = append(b.listeners[event], fn)
}

// SubscribeAll регистрирует слушателя на все типы событий.
func (b *EventBus) SubscribeAll(fn Listener) {
	for _, event := range []EventType{
		EventTaskStarted,
		EventTaskCompleted,
		EventTaskFailed,
		EventTaskRetry,
	} {
		b.Subscribe(event, fn)
	}
}

// Emit рассылает событие всем подписчикам типа.
func (b *EventBus) Emit(event EventType, task domain.Task) {
	b.mu.RLock()
	listeners := b.listeners[event]
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.call(event, fn, Event{Type: event, Task: task})
	}
}

// call вызывает слушателя, изолируя панику.
func (b *EventBus) call(event EventType, fn Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				"event", event,
				"task_id", evt.Task.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(evt)
}
