package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/queue"
	"github.com/shaiso/Harvester/internal/retry"
	"github.com/shaiso/Harvester/internal/workerpool"
)

// Значения по умолчанию.
const (
	defaultLoadLimit  = 100
	defaultMaxRetries = 3

	// dispatcherID пишется в TaskStore при взятии task в выполнение.
	dispatcherID = "orchestrator"
)

// Orchestrator связывает очередь, пул воркеров, политику повторов
// и TaskStore.
type Orchestrator struct {
	store  TaskStore
	pool   *workerpool.Pool
	policy *retry.Policy

	queue   *queue.TaskQueue
	events  *EventBus
	delayed *delayScheduler

	loadLimit int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — персистентное хранилище tasks (обязателен).
	Store TaskStore

	// Pool — пул воркеров (обязателен).
	Pool *workerpool.Pool

	// Policy — политика повторов (опционально; default: retry.DefaultPolicy).
	Policy *retry.Policy

	// LoadLimit — сколько PENDING tasks загружать из стора при старте
	// (default: 100).
	LoadLimit int

	// Logger (опционально).
	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	policy := cfg.Policy
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	loadLimit := cfg.LoadLimit
	if loadLimit <= 0 {
		loadLimit = defaultLoadLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		store:     cfg.Store,
		pool:      cfg.Pool,
		policy:    policy,
		queue:     queue.New(),
		events:    NewEventBus(logger),
		loadLimit: loadLimit,
		logger:    logger,
	}
	o.delayed = newDelayScheduler(o.requeue)
	return o
}

// Events возвращает шину событий для регистрации слушателей.
func (o *Orchestrator) Events() *EventBus {
	return o.events
}

// QueueSize возвращает текущий размер очереди.
func (o *Orchestrator) QueueSize() int {
	return o.queue.Size()
}

// PendingRetries возвращает количество tasks, ожидающих повтора.
func (o *Orchestrator) PendingRetries() int {
	return o.delayed.Pending()
}

// IsRunning проверяет, запущен ли оркестратор.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Start запускает оркестратор: поднимает пул воркеров, загружает
// PENDING tasks из стора и стартует цикл диспетчеризации.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator")

	o.pool.Start()

	// Подхватываем tasks, созданные пока были выключены.
	// Новые submissions принимаются только после этого.
	if err := o.loadPending(ctx); err != nil {
		o.logger.Error("failed to load pending tasks", "error", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.delayed.Run(ctx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.dispatchLoop(ctx)
	}()

	o.logger.Info("orchestrator started", "queued", o.queue.Size())
	return nil
}

// Stop останавливает оркестратор и дожидается завершения горутин.
// Выполняющиеся tasks дорабатывают до конца: сигнала отмены для
// RUNNING task нет.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()
	o.pool.Stop()

	o.logger.Info("orchestrator stopped", "queued", o.queue.Size())
}

// loadPending загружает PENDING tasks из стора в очередь.
// Идемпотентен относительно уже стоящих в очереди tasks.
func (o *Orchestrator) loadPending(ctx context.Context) error {
	tasks, err := o.store.GetPending(ctx, o.loadLimit)
	if err != nil {
		return fmt.Errorf("get pending tasks: %w", err)
	}

	loaded := 0
	for _, task := range tasks {
		if o.queue.Put(task) {
			loaded++
		}
	}

	o.logger.Info("loaded pending tasks", "count", loaded)
	return nil
}

// CreateParams — параметры создания task.
type CreateParams struct {
	Name       string
	Type       domain.TaskType
	TargetURL  string
	Config     map[string]any
	Selectors  map[string]any
	Priority   int
	MaxRetries int
}

// CreateTask создаёт task в TaskStore, не ставя его в очередь.
func (o *Orchestrator) CreateTask(ctx context.Context, params CreateParams) (*domain.Task, error) {
	task := domain.NewTask(params.Name, params.Type, params.TargetURL)
	task.Config = params.Config
	task.Selectors = params.Selectors
	task.Priority = params.Priority
	task.MaxRetries = params.MaxRetries
	if task.MaxRetries <= 0 {
		task.MaxRetries = defaultMaxRetries
	}

	if err := o.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	o.logger.Info("task created",
		"task_id", task.ID,
		"name", task.Name,
		"type", task.Type,
		"priority", task.Priority,
	)
	return task, nil
}

// SubmitTask ставит task в очередь на выполнение.
// Повторная постановка уже стоящего в очереди task — no-op.
func (o *Orchestrator) SubmitTask(task *domain.Task) uuid.UUID {
	if o.queue.Put(task) {
		o.logger.Info("task submitted", "task_id", task.ID, "priority", task.Priority)
	} else {
		o.logger.Debug("task already queued", "task_id", task.ID)
	}
	return task.ID
}

// SubmitNewTask создаёт task и сразу ставит его в очередь.
func (o *Orchestrator) SubmitNewTask(ctx context.Context, params CreateParams) (uuid.UUID, error) {
	task, err := o.CreateTask(ctx, params)
	if err != nil {
		return uuid.Nil, err
	}
	return o.SubmitTask(task), nil
}

// CancelTask отменяет task. Успешна только из статуса PENDING;
// иначе возвращает ErrInvalidState. Отмены RUNNING task нет:
// выполняющийся task дорабатывает до конца.
func (o *Orchestrator) CancelTask(ctx context.Context, id uuid.UUID) error {
	task, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: cannot cancel task in status %s", ErrInvalidState, task.Status)
	}

	task.MarkCancelled()
	if err := o.store.Update(ctx, task); err != nil {
		return fmt.Errorf("update cancelled task: %w", err)
	}
	o.queue.Remove(id)

	o.logger.Info("task cancelled", "task_id", id)
	return nil
}

// GetTaskStatus возвращает task из TaskStore.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return o.store.Get(ctx, id)
}

// Stats — сводная статистика оркестратора.
type Stats struct {
	Running        bool                 `json:"running"`
	QueueSize      int                  `json:"queue_size"`
	PendingRetries int                  `json:"pending_retries"`
	Tasks          TaskStats            `json:"tasks"`
	Pool           workerpool.PoolStats `json:"pool"`
}

// GetStats собирает статистику по очереди, стору и пулу.
func (o *Orchestrator) GetStats(ctx context.Context) (Stats, error) {
	taskStats, err := o.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}

	return Stats{
		Running:        o.IsRunning(),
		QueueSize:      o.queue.Size(),
		PendingRetries: o.delayed.Pending(),
		Tasks:          taskStats,
		Pool:           o.pool.Stats(),
	}, nil
}

// dispatchLoop — цикл диспетчеризации.
//
// Снимает task с наибольшим приоритетом и передаёт выполнение в
// отдельную горутину: долгий executor не задерживает диспетчеризацию
// следующих tasks. Конкурентность ограничивает семафор пула.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	for {
		task, err := o.queue.Get(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
				o.logger.Error("queue get failed", "error", err)
			}
			return
		}

		// Взятый в выполнение task дорабатывает до конца даже при
		// остановке оркестратора: Stop дожидается его через wg.
		o.wg.Add(1)
		go func(task *domain.Task) {
			defer o.wg.Done()
			o.runTask(context.WithoutCancel(ctx), task)
		}(task)
	}
}

// runTask выполняет один task от пометки RUNNING до финализации.
// Ошибки воркера не покидают этот метод: любой исход превращается
// в переход статуса и событие.
func (o *Orchestrator) runTask(ctx context.Context, task *domain.Task) {
	if err := o.store.StartTask(ctx, task.ID, dispatcherID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			o.logger.Warn("task gone before start", "task_id", task.ID)
			return
		}
		// Транзиентный сбой стора не должен парковать task до
		// рестарта: возвращаем его в расписание перепостановки.
		o.logger.Error("failed to mark task running", "task_id", task.ID, "error", err)
		o.delayed.Schedule(task, time.Now().Add(o.policy.Delay(0)))
		return
	}
	task.MarkRunning(dispatcherID)
	o.events.Emit(EventTaskStarted, task.Snapshot())

	result, workerID, err := o.pool.Execute(ctx, task)
	if workerID != "" {
		task.WorkerID = workerID
	}

	if err == nil && result.Success {
		if err := o.store.CompleteTask(ctx, task.ID, true, result.ItemsScraped, ""); err != nil {
			o.logger.Error("failed to complete task", "task_id", task.ID, "error", err)
		}
		task.MarkSuccess(result.ItemsScraped)
		o.events.Emit(EventTaskCompleted, task.Snapshot())

		o.logger.Info("task completed",
			"task_id", task.ID,
			"worker_id", workerID,
			"items", result.ItemsScraped,
		)
		return
	}

	errMsg := "execution returned failure"
	if err != nil {
		errMsg = err.Error()
	}
	o.handleFailure(ctx, task, err, errMsg)
}

// handleFailure решает судьбу упавшего task: повтор с backoff или
// окончательный FAILED.
//
// retry_count перечитывается из TaskStore — он авторитетен.
func (o *Orchestrator) handleFailure(ctx context.Context, task *domain.Task, execErr error, errMsg string) {
	// Нехватка ресурсов (нет свободного воркера, квота хоста) — не сбой
	// самого task'а: выполнение не состоялось, бюджет повторов
	// не списывается. Task возвращается в очередь после паузы.
	if execErr != nil && retry.KindOf(execErr) == retry.KindResourceExhausted {
		o.deferTask(ctx, task, errMsg)
		return
	}

	current, err := o.store.Get(ctx, task.ID)
	if err != nil {
		o.logger.Error("failed to reload task after failure", "task_id", task.ID, "error", err)
		return
	}

	retryable := execErr == nil || o.policy.ShouldRetry(execErr)

	if retryable && current.CanRetry() {
		updated, err := o.store.RetryTask(ctx, task.ID)
		if err != nil {
			o.logger.Error("failed to mark task for retry", "task_id", task.ID, "error", err)
			return
		}
		if updated != nil {
			updated.ErrorMessage = errMsg
			o.events.Emit(EventTaskRetry, updated.Snapshot())

			delay := o.policy.Delay(updated.RetryCount)
			o.delayed.Schedule(updated, time.Now().Add(delay))

			o.logger.Info("task scheduled for retry",
				"task_id", task.ID,
				"retry", updated.RetryCount,
				"max_retries", updated.MaxRetries,
				"delay", delay,
			)
			return
		}
		// Бюджет исчерпан между перечиткой и RetryTask — падаем насовсем.
	}

	if err := o.store.CompleteTask(ctx, task.ID, false, 0, errMsg); err != nil {
		o.logger.Error("failed to mark task failed", "task_id", task.ID, "error", err)
	}
	task.RetryCount = current.RetryCount
	task.MarkFailed(errMsg)
	o.events.Emit(EventTaskFailed, task.Snapshot())

	o.logger.Error("task failed permanently",
		"task_id", task.ID,
		"retries", current.RetryCount,
		"error", errMsg,
	)
}

// deferTask возвращает task, выполнение которого не состоялось,
// в PENDING и ставит его на отложенную перепостановку, не трогая
// retry_count.
func (o *Orchestrator) deferTask(ctx context.Context, task *domain.Task, reason string) {
	current, err := o.store.Get(ctx, task.ID)
	if err != nil {
		o.logger.Error("failed to reload task for deferral", "task_id", task.ID, "error", err)
		return
	}
	current.MarkPending()
	if err := o.store.Update(ctx, current); err != nil {
		o.logger.Error("failed to return task to pending", "task_id", task.ID, "error", err)
		return
	}

	delay := o.policy.Delay(0)
	o.delayed.Schedule(current, time.Now().Add(delay))

	o.logger.Warn("task deferred",
		"task_id", task.ID,
		"reason", reason,
		"delay", delay,
	)
}

// requeue возвращает созревший повтор в очередь.
// Проверка Contains защищает от двойной постановки.
func (o *Orchestrator) requeue(task *domain.Task) {
	if o.queue.Contains(task.ID) {
		o.logger.Warn("retried task already queued", "task_id", task.ID)
		return
	}
	o.queue.Put(task)
	o.logger.Debug("retried task requeued", "task_id", task.ID, "retry", task.RetryCount)
}
