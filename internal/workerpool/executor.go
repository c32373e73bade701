package workerpool

import (
	"context"

	"github.com/shaiso/Harvester/internal/domain"
)

// TaskExecutor — внешняя способность выполнить task.
//
// Реализуется вне ядра по типу задания (scrape, navigate, form_fill).
// Для ядра executor непрозрачен и ненадёжен: вызов может длиться долго
// (браузерная автоматизация), завершаться ошибкой или паниковать.
// Ошибки желательно помечать тегом retry.Kind — по нему Orchestrator
// решает, повторять ли task.
type TaskExecutor interface {
	Execute(ctx context.Context, task *domain.Task) (Result, error)
}

// Result — результат выполнения task.
type Result struct {
	// Success — задание выполнено.
	Success bool

	// ItemsScraped — количество извлечённых элементов.
	ItemsScraped int
}

// ExecutorFunc адаптирует функцию к интерфейсу TaskExecutor.
type ExecutorFunc func(ctx context.Context, task *domain.Task) (Result, error)

// Execute вызывает f.
func (f ExecutorFunc) Execute(ctx context.Context, task *domain.Task) (Result, error) {
	return f(ctx, task)
}
