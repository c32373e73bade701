package proxy

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
)

// Strategy — стратегия выбора следующего прокси.
type Strategy string

const (
	// StrategyRoundRobin — циклический обход здоровых прокси.
	StrategyRoundRobin Strategy = "round_robin"

	// StrategyRandom — равномерный случайный выбор.
	StrategyRandom Strategy = "random"

	// StrategyLeastUsed — прокси с наименьшим числом запросов.
	StrategyLeastUsed Strategy = "least_used"

	// StrategyFastest — прокси с наименьшим временем ответа.
	StrategyFastest Strategy = "fastest"

	// StrategyWeighted — случайный выбор с весом по success rate.
	StrategyWeighted Strategy = "weighted"
)

// Параметры взвешенного выбора и авто-карантина.
const (
	// neutralWeight — вес прокси без истории запросов.
	neutralWeight = 50.0

	// minWeight — нижняя граница веса: прокси с нулевым success rate
	// остаётся выбираемым.
	minWeight = 1.0

	// quarantineMinRequests, quarantineMaxRate — порог авто-карантина:
	// после 5+ запросов с success rate ниже 20% прокси помечается
	// нездоровым.
	quarantineMinRequests = 5
	quarantineMaxRate     = 20.0
)

// Rotator выбирает следующий прокси из пула по настраиваемой стратегии
// и транслирует исходы запросов в счётчики пула.
type Rotator struct {
	pool *Pool

	mu       sync.Mutex
	strategy Strategy
	enabled  bool
	// index — позиция циклического обхода для round_robin.
	index int
	// currentKey — ключ последнего выданного прокси.
	currentKey string

	logger *slog.Logger
}

// NewRotator создаёт включённый ротатор над пулом.
func NewRotator(pool *Pool, strategy Strategy, logger *slog.Logger) *Rotator {
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{
		pool:     pool,
		strategy: strategy,
		enabled:  true,
		logger:   logger,
	}
}

// SetStrategy меняет стратегию выбора.
func (r *Rotator) SetStrategy(strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = strategy
	r.index = 0
}

// Strategy возвращает текущую стратегию.
func (r *Rotator) Strategy() Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strategy
}

// SetEnabled включает или выключает ротацию.
// У выключенного ротатора GetNext возвращает nil.
func (r *Rotator) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// GetNext выбирает следующий прокси по стратегии.
// Возвращает nil, если ротация выключена или здоровых прокси нет.
func (r *Rotator) GetNext() *domain.Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return nil
	}
	healthy := r.pool.GetHealthy()
	if len(healthy) == 0 {
		return nil
	}

	var selected domain.Proxy
	switch r.strategy {
	case StrategyRandom:
		selected = healthy[rand.Intn(len(healthy))]
	case StrategyLeastUsed:
		selected = leastUsed(healthy)
	case StrategyFastest:
		selected = fastest(healthy)
	case StrategyWeighted:
		selected = weighted(healthy)
	default:
		// round_robin: снапшот мог сжаться — сбрасываем индекс.
		if r.index >= len(healthy) {
			r.index = 0
		}
		selected = healthy[r.index]
		r.index++
	}

	r.currentKey = selected.Key()
	r.pool.markUsed(r.currentKey)
	return &selected
}

// Current возвращает копию последнего выданного прокси.
func (r *Rotator) Current() (domain.Proxy, bool) {
	r.mu.Lock()
	key := r.currentKey
	r.mu.Unlock()

	if key == "" {
		return domain.Proxy{}, false
	}
	return r.pool.GetByAddress(key)
}

// ForceRotate принудительно переключает текущий прокси на следующий.
func (r *Rotator) ForceRotate() *domain.Proxy {
	return r.GetNext()
}

// MarkCurrentUnhealthy помечает текущий прокси нездоровым в пуле.
func (r *Rotator) MarkCurrentUnhealthy() {
	r.mu.Lock()
	key := r.currentKey
	r.mu.Unlock()

	if key != "" {
		r.pool.MarkUnhealthy(key)
	}
}

// RecordSuccess фиксирует успешный запрос через текущий прокси.
func (r *Rotator) RecordSuccess(responseTime time.Duration) {
	r.mu.Lock()
	key := r.currentKey
	r.mu.Unlock()

	if key == "" {
		return
	}
	r.pool.RecordSuccess(key, responseTime)
}

// RecordFailure фиксирует неудачный запрос через текущий прокси.
// Хронически неудачный прокси уходит в карантин: после
// quarantineMinRequests запросов с success rate ниже quarantineMaxRate
// он помечается нездоровым.
func (r *Rotator) RecordFailure() {
	r.mu.Lock()
	key := r.currentKey
	r.mu.Unlock()

	if key == "" {
		return
	}
	updated, ok := r.pool.RecordFailure(key)
	if !ok {
		return
	}
	if updated.TotalRequests >= quarantineMinRequests && updated.SuccessRate() < quarantineMaxRate {
		r.pool.MarkUnhealthy(key)
	}
}

// leastUsed возвращает прокси с минимальным числом запросов.
func leastUsed(proxies []domain.Proxy) domain.Proxy {
	best := proxies[0]
	for _, p := range proxies[1:] {
		if p.TotalRequests < best.TotalRequests {
			best = p
		}
	}
	return best
}

// fastest возвращает прокси с минимальным временем ответа среди
// измеренных; если измерений нет — случайный.
func fastest(proxies []domain.Proxy) domain.Proxy {
	var best *domain.Proxy
	for i := range proxies {
		if proxies[i].ResponseTime <= 0 {
			continue
		}
		if best == nil || proxies[i].ResponseTime < best.ResponseTime {
			best = &proxies[i]
		}
	}
	if best == nil {
		return proxies[rand.Intn(len(proxies))]
	}
	return *best
}

// weighted делает случайный выбор по кумулятивным весам.
// Вес — success rate, для прокси без истории — нейтральный вес;
// нижняя граница не даёт весу обнулиться.
func weighted(proxies []domain.Proxy) domain.Proxy {
	weights := make([]float64, len(proxies))
	total := 0.0
	for i, p := range proxies {
		w := neutralWeight
		if p.TotalRequests > 0 {
			w = p.SuccessRate()
		}
		if w < minWeight {
			w = minWeight
		}
		weights[i] = w
		total += w
	}

	draw := rand.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if draw <= cumulative {
			return proxies[i]
		}
	}
	return proxies[len(proxies)-1]
}
