// Harvester CLI — инструмент командной строки для управления tasks
// и прокси.
//
// Использование:
//
//	harvester [--mq-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task    Управление tasks (submit через RabbitMQ, show/list из БД)
//	proxy   Проверка списков прокси
//	stats   Сводная статистика tasks
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Harvester/internal/cli"
	"github.com/shaiso/Harvester/internal/mq"
	"github.com/shaiso/Harvester/internal/repo"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var mqURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvester CLI — task execution and scraping tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&mqURL, "mq-url", "", "RabbitMQ URL (default $RABBITMQ_URL or local)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Логи инфраструктурных пакетов не должны мешать выводу команд.
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	deps := cli.Deps{
		Publisher: func(cmd *cobra.Command) (*mq.Publisher, func(), error) {
			url := mqURL
			if url == "" {
				url = os.Getenv("RABBITMQ_URL")
			}
			if url == "" {
				url = mq.DefaultURL()
			}

			conn, err := mq.Connect(url, quiet)
			if err != nil {
				return nil, nil, err
			}
			if err := mq.SetupTopology(conn); err != nil {
				conn.Close()
				return nil, nil, err
			}
			return mq.NewPublisher(conn, quiet), func() { conn.Close() }, nil
		},
		TaskRepo: func(cmd *cobra.Command) (*repo.TaskRepo, func(), error) {
			pool, err := repo.NewPool(cmd.Context())
			if err != nil {
				return nil, nil, err
			}
			return repo.NewTaskRepo(pool), pool.Close, nil
		},
		Output: func() *cli.Output { return cli.NewOutput(jsonOutput) },
	}

	rootCmd.AddCommand(
		cli.NewTaskCmd(deps),
		cli.NewProxyCmd(deps),
		cli.NewStatsCmd(deps),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
