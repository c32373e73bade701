package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
)

// maxRecentErrors — сколько последних ошибок хранит воркер.
const maxRecentErrors = 5

// WorkerState — состояние воркера.
type WorkerState string

const (
	// StateIdle — воркер свободен и готов принять task.
	StateIdle WorkerState = "idle"

	// StateRunning — воркер выполняет task.
	StateRunning WorkerState = "running"

	// StatePaused — воркер приостановлен (только из Idle).
	StatePaused WorkerState = "paused"

	// StateStopped — воркер остановлен пулом.
	StateStopped WorkerState = "stopped"

	// StateError — воркер в ошибочном состоянии до явного сброса.
	StateError WorkerState = "error"
)

// WorkerStats — накопительная статистика воркера.
//
// Статистикой владеет сам воркер: обновляется только из его
// пути выполнения, межворкерные блокировки не нужны.
type WorkerStats struct {
	// TasksCompleted, TasksFailed — счётчики завершённых tasks.
	TasksCompleted int `json:"tasks_completed"`
	TasksFailed    int `json:"tasks_failed"`

	// TotalDuration — суммарное время выполнения.
	TotalDuration time.Duration `json:"total_duration"`

	// LastTaskAt — время завершения последнего task.
	LastTaskAt *time.Time `json:"last_task_at,omitempty"`

	// RecentErrors — последние ошибки, не более maxRecentErrors.
	RecentErrors []string `json:"recent_errors,omitempty"`
}

// SuccessRate возвращает долю успешных tasks в процентах.
func (s *WorkerStats) SuccessRate() float64 {
	total := s.TasksCompleted + s.TasksFailed
	if total == 0 {
		return 0
	}
	return float64(s.TasksCompleted) / float64(total) * 100
}

// AvgDuration возвращает среднее время выполнения task.
func (s *WorkerStats) AvgDuration() time.Duration {
	total := s.TasksCompleted + s.TasksFailed
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// Worker выполняет один task за раз через внешний TaskExecutor.
//
// Создаётся и уничтожается пулом. Переходы состояний:
// Idle → Running → {Idle, Error}; Idle ↔ Paused; * → Stopped.
type Worker struct {
	id       string
	executor TaskExecutor
	logger   *slog.Logger

	mu    sync.Mutex
	state WorkerState
	stats WorkerStats
}

// NewWorker создаёт воркера в состоянии Idle.
func NewWorker(id string, executor TaskExecutor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:       id,
		executor: executor,
		logger:   logger.With("worker_id", id),
		state:    StateIdle,
	}
}

// ID возвращает идентификатор воркера.
func (w *Worker) ID() string {
	return w.id
}

// State возвращает текущее состояние.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats возвращает копию статистики.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.RecentErrors = append([]string(nil), w.stats.RecentErrors...)
	return stats
}

// IsAvailable проверяет, готов ли воркер принять task.
func (w *Worker) IsAvailable() bool {
	return w.State() == StateIdle
}

// Pause приостанавливает воркера. Допустимо только из Idle:
// выполняющийся task не прерывается.
func (w *Worker) Pause() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateRunning {
		return ErrWorkerBusy
	}
	if w.state != StateIdle {
		return fmt.Errorf("%w: state is %s", ErrWorkerNotIdle, w.state)
	}
	w.state = StatePaused
	return nil
}

// Resume возвращает воркера из Paused в Idle.
func (w *Worker) Resume() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StatePaused {
		return fmt.Errorf("%w: state is %s", ErrWorkerNotIdle, w.state)
	}
	w.state = StateIdle
	return nil
}

// ClearError сбрасывает липкое состояние Error обратно в Idle.
func (w *Worker) ClearError() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateError {
		w.state = StateIdle
	}
}

// Stop переводит воркера в Stopped.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateStopped
}

// Execute выполняет task. Если воркер не Idle, выполнение не стартует
// и возвращается ошибка.
//
// Любая паника executor'а перехватывается и учитывается как неуспех;
// воркер при этом переходит в Error до явного сброса. Обычная ошибка
// executor'а возвращает воркера в Idle.
func (w *Worker) Execute(ctx context.Context, task *domain.Task) (Result, error) {
	w.mu.Lock()
	if w.state != StateIdle {
		state := w.state
		w.mu.Unlock()
		return Result{}, fmt.Errorf("%w: state is %s", ErrWorkerNotIdle, state)
	}
	w.state = StateRunning
	w.mu.Unlock()

	start := time.Now()
	result, err := w.runExecutor(ctx, task)
	duration := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.stats.TotalDuration += duration
	w.stats.LastTaskAt = &now

	if err != nil || !result.Success {
		w.stats.TasksFailed++
		if err != nil {
			w.recordErrorLocked(err.Error())
		}
	} else {
		w.stats.TasksCompleted++
	}

	// Паника executor'а — липкий Error; остальное возвращает в Idle.
	if w.state == StateRunning {
		w.state = StateIdle
	}

	return result, err
}

// runExecutor вызывает executor, перехватывая панику.
func (w *Worker) runExecutor(ctx context.Context, task *domain.Task) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("executor panicked",
				"task_id", task.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = Result{}
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, r)

			w.mu.Lock()
			w.state = StateError
			w.mu.Unlock()
		}
	}()

	return w.executor.Execute(ctx, task)
}

// recordErrorLocked добавляет ошибку в кольцо последних. Под w.mu.
func (w *Worker) recordErrorLocked(msg string) {
	w.stats.RecentErrors = append(w.stats.RecentErrors, msg)
	if len(w.stats.RecentErrors) > maxRecentErrors {
		w.stats.RecentErrors = w.stats.RecentErrors[len(w.stats.RecentErrors)-maxRecentErrors:]
	}
}
