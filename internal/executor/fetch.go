package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/proxy"
	"github.com/shaiso/Harvester/internal/retry"
	"github.com/shaiso/Harvester/internal/workerpool"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "Harvester/1.0"

	// maxErrorBody — сколько байт тела ответа попадает в текст ошибки.
	maxErrorBody = 200
)

// FetchExecutor выполняет HTTP-задания: scrape и navigate.
//
// Запросы идут через прокси из ротации (если она настроена), каждый
// целевой хост защищён собственным circuit breaker'ом. Ошибки
// классифицируются тегом retry.Kind:
//   - сетевые сбои, 5xx — transient, повторяются;
//   - 429 — resource_exhausted;
//   - прочие 4xx, битая конфигурация — fatal, не повторяются.
//
// Config (из task.Config):
//   - method (string): HTTP-метод. Default: GET
//   - headers (map[string]any): заголовки запроса
//   - user_agent (string): User-Agent. Default: Harvester/1.0
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
type FetchExecutor struct {
	rotator *proxy.Rotator

	breakerCfg retry.BreakerConfig
	mu         sync.Mutex
	// breakers — по одному breaker'у на целевой хост.
	breakers map[string]*retry.CircuitBreaker

	logger *slog.Logger
}

// FetchConfig — конфигурация FetchExecutor.
type FetchConfig struct {
	// Rotator — ротация прокси (опционально; nil — прямые запросы).
	Rotator *proxy.Rotator

	// Breaker — параметры circuit breaker'ов хостов.
	Breaker retry.BreakerConfig

	// Logger (опционально).
	Logger *slog.Logger
}

// NewFetchExecutor создаёт FetchExecutor.
func NewFetchExecutor(cfg FetchConfig) *FetchExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchExecutor{
		rotator:    cfg.Rotator,
		breakerCfg: cfg.Breaker,
		breakers:   make(map[string]*retry.CircuitBreaker),
		logger:     logger,
	}
}

// Execute выполняет HTTP-запрос task.
func (e *FetchExecutor) Execute(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, getTimeout(task.Config))
	defer cancel()

	req, target, err := e.buildRequest(ctx, task, http.MethodGet, nil)
	if err != nil {
		return workerpool.Result{}, err
	}
	return e.do(req, target, task)
}

// buildRequest собирает запрос из task. Ошибки конфигурации — fatal.
func (e *FetchExecutor) buildRequest(ctx context.Context, task *domain.Task, defaultMethod string, body io.Reader) (*http.Request, *url.URL, error) {
	if task.TargetURL == "" {
		return nil, nil, retry.Fatal(ErrMissingTargetURL)
	}
	target, err := url.Parse(task.TargetURL)
	if err != nil || target.Host == "" {
		return nil, nil, retry.Fatal(fmt.Errorf("invalid target_url %q: %v", task.TargetURL, err))
	}

	method := getString(task.Config, "method", defaultMethod)
	req, err := http.NewRequestWithContext(ctx, method, task.TargetURL, body)
	if err != nil {
		return nil, nil, retry.Fatal(fmt.Errorf("build request: %v", err))
	}

	setHeaders(req, task.Config)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", getString(task.Config, "user_agent", defaultUserAgent))
	}
	return req, target, nil
}

// do выполняет собранный запрос под breaker'ом хоста.
func (e *FetchExecutor) do(req *http.Request, target *url.URL, task *domain.Task) (workerpool.Result, error) {
	breaker := e.breakerFor(target.Host)
	if !breaker.Allow() {
		return workerpool.Result{}, fmt.Errorf("host %s: %w", target.Host, retry.ErrCircuitOpen)
	}

	client, proxyUsed := e.buildClient()
	defer client.CloseIdleConnections()

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		breaker.RecordFailure()
		e.recordProxy(proxyUsed, false, 0)
		return workerpool.Result{}, retry.Transient(fmt.Errorf("%w: %v", ErrHTTPRequest, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		breaker.RecordFailure()
		e.recordProxy(proxyUsed, false, 0)
		return workerpool.Result{}, retry.Exhausted(fmt.Errorf("%w: HTTP %d from %s", ErrHTTPRequest, resp.StatusCode, target.Host))

	case resp.StatusCode >= http.StatusInternalServerError:
		breaker.RecordFailure()
		e.recordProxy(proxyUsed, false, 0)
		return workerpool.Result{}, retry.Transient(fmt.Errorf("%w: HTTP %d from %s", ErrHTTPRequest, resp.StatusCode, target.Host))

	case resp.StatusCode >= http.StatusBadRequest:
		// Хост жив и ответил — breaker не трогаем в минус.
		breaker.RecordSuccess()
		e.recordProxy(proxyUsed, true, elapsed)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return workerpool.Result{}, retry.Fatal(fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, string(body)))
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		breaker.RecordFailure()
		e.recordProxy(proxyUsed, false, 0)
		return workerpool.Result{}, retry.Transient(fmt.Errorf("%w: read body: %v", ErrHTTPRequest, err))
	}

	breaker.RecordSuccess()
	e.recordProxy(proxyUsed, true, elapsed)

	e.logger.Debug("fetch completed",
		"task_id", task.ID,
		"url", task.TargetURL,
		"status", resp.StatusCode,
		"bytes", n,
		"duration", elapsed,
	)
	return workerpool.Result{Success: true, ItemsScraped: 1}, nil
}

// buildClient собирает HTTP-клиент, при настроенной ротации —
// с прокси из неё.
func (e *FetchExecutor) buildClient() (*http.Client, bool) {
	client := &http.Client{}
	if e.rotator == nil {
		return client, false
	}

	next := e.rotator.GetNext()
	if next == nil {
		return client, false
	}
	proxyURL, err := url.Parse(next.URL())
	if err != nil {
		e.logger.Warn("skipping proxy with bad url", "proxy", next.Key())
		return client, false
	}

	client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	return client, true
}

// recordProxy транслирует исход запроса в счётчики ротации.
func (e *FetchExecutor) recordProxy(used bool, success bool, responseTime time.Duration) {
	if !used || e.rotator == nil {
		return
	}
	if success {
		e.rotator.RecordSuccess(responseTime)
	} else {
		e.rotator.RecordFailure()
	}
}

// breakerFor возвращает breaker хоста, создавая его при первом обращении.
func (e *FetchExecutor) breakerFor(host string) *retry.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	breaker, ok := e.breakers[host]
	if !ok {
		breaker = retry.NewCircuitBreaker(e.breakerCfg)
		e.breakers[host] = breaker
	}
	return breaker
}

// BreakerState возвращает состояние breaker'а хоста.
func (e *FetchExecutor) BreakerState(host string) (retry.BreakerState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	breaker, ok := e.breakers[host]
	if !ok {
		return "", false
	}
	return breaker.State(), true
}

// getString извлекает строку из конфигурации с default-значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}

// getTimeout извлекает таймаут запроса из конфигурации.
func getTimeout(config map[string]any) time.Duration {
	if val, ok := config["timeout_sec"]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultFetchTimeout
}

// setHeaders устанавливает заголовки запроса из конфигурации.
func setHeaders(req *http.Request, config map[string]any) {
	headers, ok := config["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}
