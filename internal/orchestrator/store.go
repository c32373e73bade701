package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Harvester/internal/domain"
)

// TaskStore — внешняя способность персистентного хранения tasks.
//
// Ядро не знает о схеме хранения: реализация живёт в internal/repo
// (Postgres), в тестах используется in-memory фейк. TaskStore —
// авторитетный источник retry_count: перед решением о повторе
// Orchestrator перечитывает task из стора.
type TaskStore interface {
	// Create сохраняет новый task.
	Create(ctx context.Context, task *domain.Task) error

	// Get возвращает task по ID или ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update перезаписывает изменяемые поля task.
	Update(ctx context.Context, task *domain.Task) error

	// GetPending возвращает tasks в статусе PENDING, приоритетные раньше.
	GetPending(ctx context.Context, limit int) ([]*domain.Task, error)

	// GetByStatus возвращает tasks в заданном статусе.
	GetByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error)

	// StartTask переводит task в RUNNING и закрепляет за воркером.
	StartTask(ctx context.Context, id uuid.UUID, workerID string) error

	// CompleteTask финализирует task: SUCCESS с количеством элементов
	// либо FAILED с текстом ошибки.
	CompleteTask(ctx context.Context, id uuid.UUID, success bool, items int, errMsg string) error

	// RetryTask увеличивает retry_count и возвращает task в PENDING.
	// Возвращает (nil, nil), если бюджет повторов уже исчерпан.
	RetryTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Count возвращает общее количество tasks.
	Count(ctx context.Context) (int, error)

	// Stats возвращает распределение tasks по статусам.
	Stats(ctx context.Context) (TaskStats, error)
}

// TaskStats — распределение tasks по статусам.
type TaskStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
