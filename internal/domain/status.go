package domain

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ FAILED
//	RUNNING → RETRY → PENDING (повторная постановка в очередь)
//	PENDING → CANCELLED (отмена возможна только из PENDING)
//
// Терминальные статусы (SUCCESS, FAILED, CANCELLED) не покидаются.
type TaskStatus string

const (
	// TaskStatusPending — task создан и ожидает выполнения.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusRunning — task выполняется воркером.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusRetry — task упал и ожидает повторной постановки в очередь.
	TaskStatusRetry TaskStatus = "RETRY"

	// TaskStatusSuccess — task успешно завершён.
	TaskStatusSuccess TaskStatus = "SUCCESS"

	// TaskStatusFailed — task завершился с ошибкой (после всех retry).
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusCancelled — task отменён до начала выполнения.
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
// Task в терминальном статусе неизменяем.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskType — тип автоматизируемой задачи.
//
// Тип определяет, какой executor будет выполнять task.
// Сам payload (селекторы, шаги навигации) для ядра непрозрачен.
type TaskType string

const (
	// TaskTypeScrape — извлечение данных со страницы.
	TaskTypeScrape TaskType = "scrape"

	// TaskTypeNavigate — навигация по шагам.
	TaskTypeNavigate TaskType = "navigate"

	// TaskTypeFormFill — заполнение форм.
	TaskTypeFormFill TaskType = "form_fill"

	// TaskTypeLogin — авторизация на целевом ресурсе.
	TaskTypeLogin TaskType = "login"

	// TaskTypeCustom — пользовательский executor.
	TaskTypeCustom TaskType = "custom"
)
