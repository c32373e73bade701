package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — единица работы: одно задание автоматизации или скрапинга.
//
// Task создаётся вызывающей стороной (API, CLI, очередь submissions),
// владеет им Orchestrator и TaskStore. Worker берёт Task во временное
// пользование только на время одного выполнения.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя задания.
	Name string `json:"name"`

	// Type — тип задания: scrape, navigate, form_fill, login, custom.
	Type TaskType `json:"type"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// TargetURL — целевой ресурс задания.
	TargetURL string `json:"target_url"`

	// Config — непрозрачная конфигурация задания (лимиты страниц, задержки).
	// Ядро её не интерпретирует, она передаётся executor'у как есть.
	Config map[string]any `json:"config,omitempty"`

	// Selectors — селекторы/спецификация извлечения для executor'а.
	Selectors map[string]any `json:"selectors,omitempty"`

	// RetryCount — количество уже сделанных повторов.
	// Инвариант: 0 ≤ RetryCount ≤ MaxRetries.
	RetryCount int `json:"retry_count"`

	// MaxRetries — бюджет повторов.
	MaxRetries int `json:"max_retries"`

	// Priority — приоритет (больше — раньше из очереди).
	Priority int `json:"priority"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения.
	// Устанавливается только при выходе из RUNNING.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ErrorMessage — текст последней ошибки.
	ErrorMessage string `json:"error_message,omitempty"`

	// ItemsScraped — количество извлечённых элементов.
	ItemsScraped int `json:"items_scraped"`

	// WorkerID — идентификатор воркера, выполняющего task.
	WorkerID string `json:"worker_id,omitempty"`
}

// NewTask создаёт task в статусе PENDING.
func NewTask(name string, taskType TaskType, targetURL string) *Task {
	return &Task{
		ID:        uuid.New(),
		Name:      name,
		Type:      taskType,
		Status:    TaskStatusPending,
		TargetURL: targetURL,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если task в терминальном статусе.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// CanRetry проверяет, остались ли повторы в бюджете.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// MarkRunning переводит task в RUNNING и закрепляет за воркером.
func (t *Task) MarkRunning(workerID string) {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.WorkerID = workerID
}

// MarkSuccess переводит task в SUCCESS с количеством извлечённых элементов.
func (t *Task) MarkSuccess(items int) {
	now := time.Now()
	t.Status = TaskStatusSuccess
	t.CompletedAt = &now
	t.ItemsScraped = items
	t.ErrorMessage = ""
}

// MarkFailed переводит task в FAILED с текстом ошибки.
func (t *Task) MarkFailed(errMsg string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.CompletedAt = &now
	t.ErrorMessage = errMsg
}

// MarkCancelled переводит task в CANCELLED.
// Допустимо только из PENDING, это проверяет Orchestrator.
func (t *Task) MarkCancelled() {
	now := time.Now()
	t.Status = TaskStatusCancelled
	t.CompletedAt = &now
}

// MarkPending возвращает task в PENDING без списания повтора:
// используется, когда выполнение не состоялось (нет свободного
// воркера или прокси) и сбоем самого task'а не является.
func (t *Task) MarkPending() {
	t.Status = TaskStatusPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.WorkerID = ""
}

// ResetForRetry подготавливает task к повторной постановке в очередь:
// увеличивает RetryCount, сбрасывает таймстемпы выполнения.
func (t *Task) ResetForRetry(errMsg string) {
	t.Status = TaskStatusPending
	t.RetryCount++
	t.StartedAt = nil
	t.CompletedAt = nil
	t.ErrorMessage = errMsg
	t.WorkerID = ""
}

// Snapshot возвращает копию task для передачи слушателям событий.
// Maps копируются неглубоко: payload для ядра read-only.
func (t *Task) Snapshot() Task {
	return *t
}
