package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/retry"
)

// Значения по умолчанию.
const (
	defaultPoolSize      = 5
	defaultMaxConcurrent = 10

	// workerPollInterval — период опроса свободного воркера в ExecuteBatch.
	workerPollInterval = 100 * time.Millisecond
)

// Pool — пул воркеров с ограничителем конкурентности.
//
// Лимит max_concurrent держит семафор и он независим от pool_size:
// может быть и меньше, и больше количества воркеров.
type Pool struct {
	executor TaskExecutor
	logger   *slog.Logger

	poolSize      int
	maxConcurrent int

	mu      sync.Mutex
	workers []*Worker
	nextID  int
	running bool

	sem *semaphore.Weighted
}

// Config — конфигурация пула.
type Config struct {
	// PoolSize — количество воркеров (default: 5).
	PoolSize int

	// MaxConcurrent — лимит одновременных выполнений (default: 10).
	MaxConcurrent int

	// Executor — внешний исполнитель tasks.
	Executor TaskExecutor

	// Logger (опционально).
	Logger *slog.Logger
}

// New создаёт пул. Воркеры создаются в Start.
func New(cfg Config) *Pool {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		executor:      cfg.Executor,
		logger:        logger,
		poolSize:      poolSize,
		maxConcurrent: maxConcurrent,
	}
}

// Start создаёт воркеров и включает пул.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn("worker pool already running")
		return
	}

	p.logger.Info("starting worker pool",
		"pool_size", p.poolSize,
		"max_concurrent", p.maxConcurrent,
	)

	for i := 0; i < p.poolSize; i++ {
		p.addWorkerLocked()
	}
	p.sem = semaphore.NewWeighted(int64(p.maxConcurrent))
	p.running = true

	p.logger.Info("worker pool started", "workers", len(p.workers))
}

// Stop останавливает всех воркеров и выключает пул.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info("stopping worker pool")

	for _, w := range p.workers {
		w.Stop()
	}
	p.workers = nil
	p.running = false

	p.logger.Info("worker pool stopped")
}

// IsRunning проверяет, запущен ли пул.
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// AddWorker добавляет воркера в пул.
func (p *Pool) AddWorker() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.addWorkerLocked()
	p.logger.Info("worker added", "worker_id", w.ID())
	return w
}

// addWorkerLocked создаёт воркера. Под p.mu.
func (p *Pool) addWorkerLocked() *Worker {
	p.nextID++
	w := NewWorker(fmt.Sprintf("worker-%d", p.nextID), p.executor, p.logger)
	p.workers = append(p.workers, w)
	return w
}

// RemoveWorker убирает воркера из пула.
// Возвращает ErrWorkerBusy, если воркер выполняет task.
func (p *Pool) RemoveWorker(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, w := range p.workers {
		if w.ID() != id {
			continue
		}
		if w.State() == StateRunning {
			return fmt.Errorf("%w: %s", ErrWorkerBusy, id)
		}
		w.Stop()
		p.workers = append(p.workers[:i], p.workers[i+1:]...)
		p.logger.Info("worker removed", "worker_id", id)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
}

// Workers возвращает срез текущих воркеров.
func (p *Pool) Workers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Worker(nil), p.workers...)
}

// Size возвращает количество воркеров.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// AvailableWorkers возвращает количество свободных воркеров.
func (p *Pool) AvailableWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, w := range p.workers {
		if w.IsAvailable() {
			n++
		}
	}
	return n
}

// getWorker возвращает свободного воркера или nil.
//
// Воркер в Error держит место в пуле, не принимая работу; если
// свободных нет, пул сбрасывает ему ошибку и возвращает в строй —
// иначе каждая паника executor'а навсегда уменьшала бы ёмкость.
func (p *Pool) getWorker() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		if w.IsAvailable() {
			return w
		}
	}
	for _, w := range p.workers {
		if w.State() == StateError {
			w.ClearError()
			p.logger.Warn("worker error state cleared for reuse", "worker_id", w.ID())
			return w
		}
	}
	return nil
}

// Execute выполняет один task через свободного воркера в пределах
// лимита конкурентности. Если свободного воркера нет, немедленно
// возвращает ErrNoWorkerAvailable с тегом retry.KindResourceExhausted:
// это ресурсная ошибка, бюджет повторов task'а она не тратит —
// вызывающая сторона откладывает task и пробует позже.
func (p *Pool) Execute(ctx context.Context, task *domain.Task) (Result, string, error) {
	if !p.IsRunning() {
		return Result{}, "", ErrPoolNotRunning
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, "", err
	}
	defer p.sem.Release(1)

	w := p.getWorker()
	if w == nil {
		return Result{}, "", retry.Exhausted(ErrNoWorkerAvailable)
	}

	result, err := w.Execute(ctx, task)
	return result, w.ID(), err
}

// ExecuteBatch выполняет несколько tasks, соблюдая общий лимит
// конкурентности. В отличие от Execute, при отсутствии свободного
// воркера не отказывает, а ждёт его освобождения.
func (p *Pool) ExecuteBatch(ctx context.Context, tasks []*domain.Task) map[string]bool {
	results := make(map[string]bool, len(tasks))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		go func(task *domain.Task) {
			defer wg.Done()

			ok := p.executeWait(ctx, task)

			mu.Lock()
			results[task.ID.String()] = ok
			mu.Unlock()
		}(task)
	}

	wg.Wait()
	return results
}

// executeWait выполняет task, дожидаясь свободного воркера.
func (p *Pool) executeWait(ctx context.Context, task *domain.Task) bool {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer p.sem.Release(1)

	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()

	for {
		if w := p.getWorker(); w != nil {
			result, err := w.Execute(ctx, task)
			if errors.Is(err, ErrWorkerNotIdle) {
				// Воркера заняли между getWorker и Execute — пробуем другого.
				continue
			}
			return err == nil && result.Success
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// PoolStats — агрегированная статистика пула.
type PoolStats struct {
	PoolSize         int     `json:"pool_size"`
	AvailableWorkers int     `json:"available_workers"`
	ErrorWorkers     int     `json:"error_workers"`
	Running          bool    `json:"running"`
	TasksCompleted   int     `json:"tasks_completed"`
	TasksFailed      int     `json:"tasks_failed"`
	SuccessRate      float64 `json:"success_rate"`
	TotalDuration    string  `json:"total_duration"`
}

// Stats собирает статистику по всем воркерам.
func (p *Pool) Stats() PoolStats {
	workers := p.Workers()

	stats := PoolStats{
		PoolSize: len(workers),
		Running:  p.IsRunning(),
	}

	var totalDuration time.Duration
	for _, w := range workers {
		ws := w.Stats()
		stats.TasksCompleted += ws.TasksCompleted
		stats.TasksFailed += ws.TasksFailed
		totalDuration += ws.TotalDuration
		if w.IsAvailable() {
			stats.AvailableWorkers++
		}
		if w.State() == StateError {
			stats.ErrorWorkers++
		}
	}

	total := stats.TasksCompleted + stats.TasksFailed
	if total > 0 {
		stats.SuccessRate = float64(stats.TasksCompleted) / float64(total) * 100
	}
	stats.TotalDuration = totalDuration.String()

	return stats
}
