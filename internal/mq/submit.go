package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/orchestrator"
)

// NewSubmitConsumer создаёт consumer очереди tasks.submit:
// каждая заявка превращается в task и ставится в очередь оркестратора.
//
// Заявки с некорректными полями отклоняются в DLQ; ошибки TaskStore
// возвращают сообщение в очередь на повторную доставку.
func NewSubmitConsumer(conn *Connection, orch *orchestrator.Orchestrator, prefetch int, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	handler := func(ctx context.Context, d *Delivery) error {
		payload, err := ParsePayload[TaskSubmitPayload](&d.Message)
		if err != nil {
			return fmt.Errorf("%w: malformed submission: %v", ErrReject, err)
		}
		if err := validateSubmit(payload); err != nil {
			return fmt.Errorf("%w: %v", ErrReject, err)
		}

		taskID, err := orch.SubmitNewTask(ctx, orchestrator.CreateParams{
			Name:       payload.Name,
			Type:       payload.Type,
			TargetURL:  payload.TargetURL,
			Config:     payload.Config,
			Selectors:  payload.Selectors,
			Priority:   payload.Priority,
			MaxRetries: payload.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("submit task: %w", err)
		}

		logger.Info("task submission accepted",
			"task_id", taskID,
			"name", payload.Name,
			"type", payload.Type,
		)
		return nil
	}

	return NewConsumer(conn, logger, ConsumerConfig{
		Queue:    QueueTasksSubmit,
		Handler:  handler,
		Prefetch: prefetch,
	})
}

// validateSubmit проверяет обязательные поля заявки.
func validateSubmit(p TaskSubmitPayload) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch p.Type {
	case domain.TaskTypeScrape, domain.TaskTypeNavigate, domain.TaskTypeFormFill,
		domain.TaskTypeLogin, domain.TaskTypeCustom:
	default:
		return fmt.Errorf("unknown task type %q", p.Type)
	}
	if p.TargetURL == "" && p.Type != domain.TaskTypeCustom {
		return fmt.Errorf("target_url is required for type %s", p.Type)
	}
	return nil
}
