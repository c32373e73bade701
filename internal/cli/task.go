package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/mq"
	"github.com/shaiso/Harvester/internal/repo"
)

// Deps — подключения, создаваемые лениво по требованию команды.
type Deps struct {
	// Publisher открывает соединение с RabbitMQ.
	Publisher func(ctx *cobra.Command) (*mq.Publisher, func(), error)

	// TaskRepo открывает соединение с Postgres.
	TaskRepo func(ctx *cobra.Command) (*repo.TaskRepo, func(), error)

	// Output — форматирование вывода.
	Output func() *Output
}

// NewTaskCmd создаёт группу команд управления tasks.
func NewTaskCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskSubmitCmd(deps),
		newTaskShowCmd(deps),
		newTaskListCmd(deps),
	)

	return cmd
}

func newTaskSubmitCmd(deps Deps) *cobra.Command {
	var taskType string
	var priority int
	var maxRetries int
	var configKVs []string
	var selectorKVs []string

	cmd := &cobra.Command{
		Use:   "submit NAME TARGET_URL",
		Short: "Submit a new task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			publisher, closeFn, err := deps.Publisher(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			payload := mq.TaskSubmitPayload{
				Name:       args[0],
				Type:       domain.TaskType(taskType),
				TargetURL:  args[1],
				Priority:   priority,
				MaxRetries: maxRetries,
			}
			if payload.Config, err = parseKVs(configKVs); err != nil {
				return err
			}
			if payload.Selectors, err = parseKVs(selectorKVs); err != nil {
				return err
			}

			if err := publisher.PublishTaskSubmit(cmd.Context(), payload); err != nil {
				return err
			}

			deps.Output().Success(fmt.Sprintf("Task submitted: %s", payload.Name))
			return nil
		},
	}

	cmd.Flags().StringVar(&taskType, "type", "scrape", "Task type (scrape, navigate, form_fill, login, custom)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Task priority (higher runs first)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Retry budget")
	cmd.Flags().StringSliceVar(&configKVs, "config", nil, "Config values as KEY=VALUE (repeatable)")
	cmd.Flags().StringSliceVar(&selectorKVs, "selector", nil, "Selectors as KEY=VALUE (repeatable)")

	return cmd
}

func newTaskShowCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}

			taskRepo, closeFn, err := deps.TaskRepo(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			task, err := taskRepo.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			deps.Output().Print(
				[]string{"ID", "NAME", "TYPE", "STATUS", "RETRIES", "ITEMS", "ERROR"},
				[][]string{taskRow(task)},
				task,
			)
			return nil
		},
	}
}

func newTaskListCmd(deps Deps) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskRepo, closeFn, err := deps.TaskRepo(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			tasks, err := taskRepo.GetByStatus(cmd.Context(), domain.TaskStatus(strings.ToUpper(status)), limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			deps.Output().Print(
				[]string{"ID", "NAME", "TYPE", "STATUS", "RETRIES", "ITEMS", "ERROR"},
				rows,
				tasks,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "PENDING", "Task status (PENDING, RUNNING, SUCCESS, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

// NewStatsCmd создаёт команду сводной статистики.
func NewStatsCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskRepo, closeFn, err := deps.TaskRepo(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := taskRepo.Stats(cmd.Context())
			if err != nil {
				return err
			}

			deps.Output().Print(
				[]string{"TOTAL", "PENDING", "RUNNING", "SUCCESS", "FAILED", "CANCELLED"},
				[][]string{{
					strconv.Itoa(stats.Total),
					strconv.Itoa(stats.Pending),
					strconv.Itoa(stats.Running),
					strconv.Itoa(stats.Success),
					strconv.Itoa(stats.Failed),
					strconv.Itoa(stats.Cancelled),
				}},
				stats,
			)
			return nil
		},
	}
}

// taskRow форматирует task в строку таблицы.
func taskRow(t *domain.Task) []string {
	return []string{
		t.ID.String(),
		t.Name,
		string(t.Type),
		string(t.Status),
		fmt.Sprintf("%d/%d", t.RetryCount, t.MaxRetries),
		strconv.Itoa(t.ItemsScraped),
		t.ErrorMessage,
	}
}

// parseKVs разбирает флаги KEY=VALUE в map.
func parseKVs(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	m := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid format %q, expected KEY=VALUE", kv)
		}
		m[parts[0]] = parts[1]
	}
	return m, nil
}
