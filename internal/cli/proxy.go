package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Harvester/internal/proxy"
)

// NewProxyCmd создаёт группу команд для работы с прокси.
func NewProxyCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Manage proxies",
	}

	cmd.AddCommand(newProxyCheckCmd(deps))
	return cmd
}

func newProxyCheckCmd(deps Deps) *cobra.Command {
	var testURL string
	var timeout time.Duration
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Probe proxies from a list file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Пробы шумят в лог — глушим всё ниже Warn.
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))

			pool := proxy.NewPool(logger)
			loaded, err := pool.LoadFromFile(args[0])
			if err != nil {
				return err
			}
			if loaded == 0 {
				return fmt.Errorf("no proxies loaded from %s", args[0])
			}

			checker, err := proxy.NewHealthChecker(proxy.HealthCheckerConfig{
				Pool:          pool,
				Prober:        &proxy.HTTPProber{TestURL: testURL, Timeout: timeout},
				MaxConcurrent: maxConcurrent,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			checker.Sweep(cmd.Context())

			proxies := pool.GetAll()
			rows := make([][]string, len(proxies))
			for i, p := range proxies {
				rows[i] = []string{
					p.Key(),
					p.Protocol,
					strconv.FormatBool(p.IsHealthy),
					p.ResponseTime.String(),
				}
			}

			out := deps.Output()
			out.Print([]string{"PROXY", "PROTOCOL", "HEALTHY", "RESPONSE_TIME"}, rows, proxies)
			out.Success(fmt.Sprintf("%d/%d healthy", pool.HealthyCount(), loaded))
			return nil
		},
	}

	cmd.Flags().StringVar(&testURL, "test-url", "", "Probe URL (default https://httpbin.org/ip)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Probe timeout")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 10, "Concurrent probes")

	return cmd
}
