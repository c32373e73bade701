package workerpool

import "errors"

// Ошибки пула воркеров.
var (
	// ErrPoolNotRunning — пул не запущен.
	ErrPoolNotRunning = errors.New("worker pool is not running")

	// ErrNoWorkerAvailable — нет свободного воркера.
	ErrNoWorkerAvailable = errors.New("no worker available")

	// ErrWorkerNotFound — воркер с таким ID в пуле отсутствует.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrWorkerBusy — операция недопустима, пока воркер выполняет task.
	ErrWorkerBusy = errors.New("worker is running a task")

	// ErrWorkerNotIdle — воркер не в состоянии Idle.
	ErrWorkerNotIdle = errors.New("worker is not idle")

	// ErrExecutorPanic — executor запаниковал во время выполнения.
	ErrExecutorPanic = errors.New("executor panicked")
)
