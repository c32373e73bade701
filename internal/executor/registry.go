package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/retry"
	"github.com/shaiso/Harvester/internal/workerpool"
)

// Registry — реестр executor'ов по типу task.
//
// Сам реализует workerpool.TaskExecutor: Execute диспетчеризует task
// к executor'у его типа.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.TaskType]workerpool.TaskExecutor
}

// NewRegistry создаёт реестр с executor'ами по умолчанию.
//
// Регистрирует: scrape и navigate — fetch, form_fill и login — form.
// Тип custom регистрируется вызывающей стороной.
func NewRegistry(fetch *FetchExecutor) *Registry {
	r := &Registry{executors: make(map[domain.TaskType]workerpool.TaskExecutor)}
	r.Register(domain.TaskTypeScrape, fetch)
	r.Register(domain.TaskTypeNavigate, fetch)
	form := &FormExecutor{fetch: fetch}
	r.Register(domain.TaskTypeFormFill, form)
	r.Register(domain.TaskTypeLogin, form)
	return r
}

// Register добавляет executor для типа task.
func (r *Registry) Register(taskType domain.TaskType, executor workerpool.TaskExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[taskType] = executor
}

// Get возвращает executor для типа task.
func (r *Registry) Get(taskType domain.TaskType) (workerpool.TaskExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return executor, nil
}

// Execute выполняет task executor'ом его типа.
// Незарегистрированный тип — невосстановимая ошибка: повтор не поможет.
func (r *Registry) Execute(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
	executor, err := r.Get(task.Type)
	if err != nil {
		return workerpool.Result{}, retry.Fatal(err)
	}
	return executor.Execute(ctx, task)
}
