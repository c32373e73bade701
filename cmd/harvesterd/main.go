// Harvester daemon — ядро выполнения tasks.
//
// harvesterd:
//   - Принимает submissions из RabbitMQ (tasks.submit) и Postgres
//   - Диспетчеризует tasks по приоритету на пул воркеров
//   - Повторяет упавшие tasks с backoff, режет хронически падающие
//     хосты circuit breaker'ом
//   - Ротирует прокси и следит за их здоровьем
//   - Публикует события жизненного цикла в tasks.events
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Harvester/internal/config"
	"github.com/shaiso/Harvester/internal/executor"
	"github.com/shaiso/Harvester/internal/mq"
	"github.com/shaiso/Harvester/internal/orchestrator"
	"github.com/shaiso/Harvester/internal/proxy"
	"github.com/shaiso/Harvester/internal/repo"
	"github.com/shaiso/Harvester/internal/retry"
	"github.com/shaiso/Harvester/internal/telemetry"
	"github.com/shaiso/Harvester/internal/workerpool"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting harvesterd")

	cfg, err := config.Load(os.Getenv("HARVESTER_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	taskRepo := repo.NewTaskRepo(pool)

	// Прокси: пул, ротация, health checker
	proxyPool := proxy.NewPool(logger)
	var rotator *proxy.Rotator
	if cfg.Proxy.ListFile != "" {
		if _, err := proxyPool.LoadFromFile(cfg.Proxy.ListFile); err != nil {
			logger.Error("failed to load proxy list", "file", cfg.Proxy.ListFile, "error", err)
			os.Exit(1)
		}
		rotator = proxy.NewRotator(proxyPool, proxy.Strategy(cfg.Proxy.Strategy), logger)

		checker, err := proxy.NewHealthChecker(proxy.HealthCheckerConfig{
			Pool:          proxyPool,
			Prober:        &proxy.HTTPProber{TestURL: cfg.Proxy.HealthTestURL},
			Schedule:      cfg.Proxy.HealthSchedule,
			MaxConcurrent: cfg.Proxy.HealthMaxConcurrent,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("failed to create health checker", "error", err)
			os.Exit(1)
		}
		go checker.Run(ctx)
	}

	// Executor'ы и пул воркеров
	fetch := executor.NewFetchExecutor(executor.FetchConfig{
		Rotator: rotator,
		Breaker: retry.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			Timeout:          cfg.Breaker.Timeout,
		},
		Logger: logger,
	})
	registry := executor.NewRegistry(fetch)

	workers := workerpool.New(workerpool.Config{
		PoolSize:      cfg.Pool.Size,
		MaxConcurrent: cfg.Pool.MaxConcurrent,
		Executor:      registry,
		Logger:        logger,
	})

	// Оркестратор
	orch := orchestrator.New(orchestrator.Config{
		Store:  taskRepo,
		Pool:   workers,
		Policy: retryPolicy(cfg.Retry),
		Logger: logger,
	})
	telemetry.RegisterMetricsListeners(orch.Events())

	// RabbitMQ: submissions и события
	mqURL := cfg.MQ.URL
	if mqURL == "" {
		mqURL = os.Getenv("RABBITMQ_URL")
	}
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.Connect(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running without submissions queue", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		mq.BridgeEvents(orch.Events(), mq.NewPublisher(mqConn, logger))

		consumer := mq.NewSubmitConsumer(mqConn, orch, cfg.MQ.Prefetch, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("submit consumer stopped", "error", err)
			}
		}()
	}

	// Запускаем оркестратор
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Обновление gauge-метрик
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				telemetry.ObserveQueueSize(orch.QueueSize())
				telemetry.ObservePendingRetries(orch.PendingRetries())
				telemetry.ObserveBusyWorkers(workers.Size() - workers.AvailableWorkers())
				telemetry.ObserveHealthyProxies(proxyPool.HealthyCount())
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		addr := cfg.HTTP.Address()
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	orch.Stop()
	logger.Info("harvesterd stopped")
}

// retryPolicy собирает retry.Policy из конфигурации.
func retryPolicy(cfg config.RetryConfig) *retry.Policy {
	return &retry.Policy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Strategy:     retry.Strategy(cfg.Strategy),
		Multiplier:   cfg.Multiplier,
		JitterMin:    cfg.JitterMin,
		JitterMax:    cfg.JitterMax,
		NonRetryable: []retry.Kind{retry.KindFatal},
	}
}
