package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrAlreadyRunning — повторный Start.
	ErrAlreadyRunning = errors.New("orchestrator already running")

	// ErrTaskNotFound — task не найден в TaskStore.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidState — операция недопустима в текущем статусе task.
	// Возвращается из CancelTask для любого статуса кроме PENDING.
	ErrInvalidState = errors.New("invalid task state")
)
