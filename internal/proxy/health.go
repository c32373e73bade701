package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Harvester/internal/domain"
)

// cronParser — парсер cron-выражений расписания проверок.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Prober — внешняя способность проверки одного прокси.
type Prober interface {
	// Check пробует прокси и возвращает его здоровье и время ответа.
	Check(ctx context.Context, proxy domain.Proxy) (healthy bool, responseTime time.Duration)
}

// HTTPProber проверяет прокси запросом к тестовому URL через него.
type HTTPProber struct {
	// TestURL — адрес для пробного запроса (default: https://httpbin.org/ip).
	TestURL string

	// Timeout — таймаут пробного запроса (default: 10s).
	Timeout time.Duration
}

// Check выполняет GET TestURL через прокси.
// Здоровым считается ответ со статусом < 500.
func (p *HTTPProber) Check(ctx context.Context, proxy domain.Proxy) (bool, time.Duration) {
	testURL := p.TestURL
	if testURL == "" {
		testURL = "https://httpbin.org/ip"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	proxyURL, err := url.Parse(proxy.URL())
	if err != nil {
		return false, 0
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
	if err != nil {
		return false, 0
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError, elapsed
}

// HealthChecker периодически проверяет все прокси пула и обновляет
// их здоровье. Расписание задаётся cron-выражением.
type HealthChecker struct {
	pool     *Pool
	prober   Prober
	schedule cron.Schedule
	// sem ограничивает одновременные проверки.
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// HealthCheckerConfig — конфигурация HealthChecker.
type HealthCheckerConfig struct {
	// Pool — проверяемый пул (обязателен).
	Pool *Pool

	// Prober — способ проверки (default: HTTPProber).
	Prober Prober

	// Schedule — cron-выражение расписания (default: каждые 5 минут).
	Schedule string

	// MaxConcurrent — ограничение одновременных проверок (default: 10).
	MaxConcurrent int

	// Logger (опционально).
	Logger *slog.Logger
}

// NewHealthChecker создаёт HealthChecker.
func NewHealthChecker(cfg HealthCheckerConfig) (*HealthChecker, error) {
	prober := cfg.Prober
	if prober == nil {
		prober = &HTTPProber{}
	}
	scheduleExpr := cfg.Schedule
	if scheduleExpr == "" {
		scheduleExpr = "*/5 * * * *"
	}
	schedule, err := cronParser.Parse(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("parse health check schedule %q: %w", scheduleExpr, err)
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthChecker{
		pool:     cfg.Pool,
		prober:   prober,
		schedule: schedule,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		logger:   logger,
	}, nil
}

// Run выполняет проверки по расписанию до отмены контекста.
func (c *HealthChecker) Run(ctx context.Context) {
	c.logger.Info("proxy health checker started")

	for {
		next := c.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("proxy health checker stopped")
			return
		case <-timer.C:
		}

		c.Sweep(ctx)
	}
}

// Sweep проверяет все прокси пула, включая нездоровые:
// восстановившийся прокси возвращается в ротацию.
func (c *HealthChecker) Sweep(ctx context.Context) {
	proxies := c.pool.GetAll()
	if len(proxies) == 0 {
		return
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, proxy := range proxies {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(proxy domain.Proxy) {
			defer wg.Done()
			defer c.sem.Release(1)
			c.checkOne(ctx, proxy)
		}(proxy)
	}
	wg.Wait()

	c.logger.Info("proxy health sweep completed",
		"checked", len(proxies),
		"healthy", c.pool.HealthyCount(),
		"duration", time.Since(start),
	)
}

// checkOne проверяет один прокси и обновляет его состояние в пуле.
func (c *HealthChecker) checkOne(ctx context.Context, proxy domain.Proxy) {
	healthy, responseTime := c.prober.Check(ctx, proxy)
	key := proxy.Key()

	if healthy {
		c.pool.MarkHealthy(key, responseTime)
		c.logger.Debug("proxy healthy", "proxy", key, "response_time", responseTime)
	} else {
		c.pool.MarkUnhealthy(key)
	}
}
