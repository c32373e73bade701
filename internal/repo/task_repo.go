package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/orchestrator"
)

// taskColumns — список колонок для SELECT, синхронизирован со scan-хелперами.
const taskColumns = `id, name, type, status, target_url, config, selectors,
       retry_count, max_retries, priority, created_at, started_at, completed_at,
       error_message, items_scraped, worker_id`

// TaskRepo — Postgres-реализация orchestrator.TaskStore.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Create создаёт новый task.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	configJSON, err := json.Marshal(task.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	selectorsJSON, err := json.Marshal(task.Selectors)
	if err != nil {
		return fmt.Errorf("marshal selectors: %w", err)
	}

	query := `
		INSERT INTO tasks (id, name, type, status, target_url, config, selectors,
		                   retry_count, max_retries, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.Name,
		task.Type,
		task.Status,
		task.TargetURL,
		configJSON,
		selectorsJSON,
		task.RetryCount,
		task.MaxRetries,
		task.Priority,
		task.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("task %s: %w", task.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get возвращает task по ID.
func (r *TaskRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// Update перезаписывает изменяемые поля task.
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	configJSON, err := json.Marshal(task.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	selectorsJSON, err := json.Marshal(task.Selectors)
	if err != nil {
		return fmt.Errorf("marshal selectors: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = $2, config = $3, selectors = $4, retry_count = $5,
		    max_retries = $6, priority = $7, started_at = $8, completed_at = $9,
		    error_message = $10, items_scraped = $11, worker_id = $12
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		configJSON,
		selectorsJSON,
		task.RetryCount,
		task.MaxRetries,
		task.Priority,
		task.StartedAt,
		task.CompletedAt,
		nullString(task.ErrorMessage),
		task.ItemsScraped,
		nullString(task.WorkerID),
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return orchestrator.ErrTaskNotFound
	}
	return nil
}

// GetPending возвращает tasks в статусе PENDING, приоритетные раньше.
func (r *TaskRepo) GetPending(ctx context.Context, limit int) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'PENDING'
		ORDER BY priority DESC, created_at ASC
		LIMIT $1
	`
	return r.queryTasks(ctx, query, limit)
}

// GetByStatus возвращает tasks в заданном статусе.
func (r *TaskRepo) GetByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.queryTasks(ctx, query, status, limit)
}

// StartTask переводит task в RUNNING и закрепляет за воркером.
func (r *TaskRepo) StartTask(ctx context.Context, id uuid.UUID, workerID string) error {
	query := `
		UPDATE tasks
		SET status = 'RUNNING', started_at = $2, worker_id = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, time.Now(), workerID)
	if err != nil {
		return fmt.Errorf("start task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return orchestrator.ErrTaskNotFound
	}
	return nil
}

// CompleteTask финализирует task: SUCCESS с количеством элементов
// либо FAILED с текстом ошибки.
func (r *TaskRepo) CompleteTask(ctx context.Context, id uuid.UUID, success bool, items int, errMsg string) error {
	status := domain.TaskStatusFailed
	if success {
		status = domain.TaskStatusSuccess
	}

	query := `
		UPDATE tasks
		SET status = $2, completed_at = $3, items_scraped = $4, error_message = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, status, time.Now(), items, nullString(errMsg))
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return orchestrator.ErrTaskNotFound
	}
	return nil
}

// RetryTask атомарно увеличивает retry_count и возвращает task в PENDING.
// Возвращает (nil, nil), если бюджет повторов уже исчерпан.
func (r *TaskRepo) RetryTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET status = 'PENDING', retry_count = retry_count + 1,
		    started_at = NULL, completed_at = NULL, worker_id = NULL
		WHERE id = $1 AND retry_count < max_retries
		RETURNING ` + taskColumns + `
	`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, orchestrator.ErrTaskNotFound) {
		// Либо task нет, либо бюджет исчерпан — различаем повторным чтением.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Count возвращает общее количество tasks.
func (r *TaskRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// Stats возвращает распределение tasks по статусам.
func (r *TaskRepo) Stats(ctx context.Context) (orchestrator.TaskStats, error) {
	query := `SELECT status, COUNT(*) FROM tasks GROUP BY status`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return orchestrator.TaskStats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	var stats orchestrator.TaskStats
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return orchestrator.TaskStats{}, fmt.Errorf("scan stats: %w", err)
		}

		stats.Total += count
		switch status {
		case domain.TaskStatusPending, domain.TaskStatusRetry:
			stats.Pending += count
		case domain.TaskStatusRunning:
			stats.Running += count
		case domain.TaskStatusSuccess:
			stats.Success += count
		case domain.TaskStatusFailed:
			stats.Failed += count
		case domain.TaskStatusCancelled:
			stats.Cancelled += count
		}
	}
	return stats, rows.Err()
}

// --- Helpers ---

func (r *TaskRepo) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTaskFromRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	task, err := scanFields(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orchestrator.ErrTaskNotFound
	}
	return task, err
}

func scanTaskFromRows(rows pgx.Rows) (*domain.Task, error) {
	return scanFields(rows)
}

// scanFields читает строку в порядке taskColumns.
func scanFields(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var configJSON, selectorsJSON []byte
	var errMsg, workerID *string

	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.Type,
		&task.Status,
		&task.TargetURL,
		&configJSON,
		&selectorsJSON,
		&task.RetryCount,
		&task.MaxRetries,
		&task.Priority,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
		&errMsg,
		&task.ItemsScraped,
		&workerID,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if configJSON != nil {
		if err := json.Unmarshal(configJSON, &task.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if selectorsJSON != nil {
		if err := json.Unmarshal(selectorsJSON, &task.Selectors); err != nil {
			return nil, fmt.Errorf("unmarshal selectors: %w", err)
		}
	}
	if errMsg != nil {
		task.ErrorMessage = *errMsg
	}
	if workerID != nil {
		task.WorkerID = *workerID
	}

	return &task, nil
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
