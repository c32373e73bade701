package proxy

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
)

// Pool — потокобезопасная коллекция прокси.
//
// Pool единолично владеет записями: снаружи отдаются только копии,
// все мутации счётчиков и здоровья идут через методы пула под мьютексом.
// Дедупликация — по ключу address:port.
type Pool struct {
	mu sync.RWMutex
	// byKey — записи по ключу address:port.
	byKey map[string]*domain.Proxy
	// keys хранит порядок добавления: снапшоты стабильны,
	// циклическая ротация детерминирована.
	keys []string

	logger *slog.Logger
}

// NewPool создаёт пустой пул.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		byKey:  make(map[string]*domain.Proxy),
		logger: logger,
	}
}

// Add добавляет прокси в пул.
// Возвращает false, если прокси с таким address:port уже есть.
func (p *Pool) Add(proxy *domain.Proxy) bool {
	key := proxy.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byKey[key]; ok {
		return false
	}
	p.byKey[key] = proxy
	p.keys = append(p.keys, key)

	p.logger.Debug("proxy added", "proxy", key, "protocol", proxy.Protocol)
	return true
}

// Remove удаляет прокси по ключу address:port.
func (p *Pool) Remove(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byKey[key]; !ok {
		return false
	}
	delete(p.byKey, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}

	p.logger.Debug("proxy removed", "proxy", key)
	return true
}

// GetByAddress возвращает копию прокси по ключу address:port.
func (p *Pool) GetByAddress(key string) (domain.Proxy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proxy, ok := p.byKey[key]
	if !ok {
		return domain.Proxy{}, false
	}
	return *proxy, true
}

// GetHealthy возвращает копии активных здоровых прокси
// в порядке добавления.
func (p *Pool) GetHealthy() []domain.Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	healthy := make([]domain.Proxy, 0, len(p.keys))
	for _, key := range p.keys {
		proxy := p.byKey[key]
		if proxy.IsActive && proxy.IsHealthy {
			healthy = append(healthy, *proxy)
		}
	}
	return healthy
}

// GetAll возвращает копии всех прокси в порядке добавления.
func (p *Pool) GetAll() []domain.Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := make([]domain.Proxy, 0, len(p.keys))
	for _, key := range p.keys {
		all = append(all, *p.byKey[key])
	}
	return all
}

// Size возвращает общее количество прокси.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byKey)
}

// HealthyCount возвращает количество активных здоровых прокси.
func (p *Pool) HealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, proxy := range p.byKey {
		if proxy.IsActive && proxy.IsHealthy {
			count++
		}
	}
	return count
}

// MarkHealthy отмечает прокси здоровым и фиксирует время отклика.
func (p *Pool) MarkHealthy(key string, responseTime time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.byKey[key]
	if !ok {
		return false
	}
	now := time.Now()
	proxy.IsHealthy = true
	proxy.ResponseTime = responseTime
	proxy.LastCheck = &now
	return true
}

// MarkUnhealthy отмечает прокси нездоровым: ротация его не выдаёт.
func (p *Pool) MarkUnhealthy(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.byKey[key]
	if !ok {
		return false
	}
	now := time.Now()
	proxy.IsHealthy = false
	proxy.LastCheck = &now

	p.logger.Warn("proxy marked unhealthy", "proxy", key,
		"success_rate", fmt.Sprintf("%.1f%%", proxy.SuccessRate()),
		"requests", proxy.TotalRequests,
	)
	return true
}

// Enable включает прокси в ротацию.
func (p *Pool) Enable(key string) bool {
	return p.setActive(key, true)
}

// Disable выводит прокси из ротации, не удаляя из пула.
func (p *Pool) Disable(key string) bool {
	return p.setActive(key, false)
}

func (p *Pool) setActive(key string, active bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.byKey[key]
	if !ok {
		return false
	}
	proxy.IsActive = active
	return true
}

// RecordSuccess фиксирует успешный запрос через прокси.
// Возвращает обновлённую копию записи.
func (p *Pool) RecordSuccess(key string, responseTime time.Duration) (domain.Proxy, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.byKey[key]
	if !ok {
		return domain.Proxy{}, false
	}
	now := time.Now()
	proxy.SuccessCount++
	proxy.TotalRequests++
	proxy.LastUsed = &now
	if responseTime > 0 {
		proxy.ResponseTime = responseTime
	}
	return *proxy, true
}

// RecordFailure фиксирует неудачный запрос через прокси.
// Возвращает обновлённую копию записи.
func (p *Pool) RecordFailure(key string) (domain.Proxy, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.byKey[key]
	if !ok {
		return domain.Proxy{}, false
	}
	now := time.Now()
	proxy.FailCount++
	proxy.TotalRequests++
	proxy.LastUsed = &now
	return *proxy, true
}

// markUsed фиксирует выдачу прокси ротацией.
func (p *Pool) markUsed(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if proxy, ok := p.byKey[key]; ok {
		now := time.Now()
		proxy.LastUsed = &now
	}
}

// PoolStats — сводная статистика пула.
type PoolStats struct {
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	Healthy       int     `json:"healthy"`
	TotalRequests int     `json:"total_requests"`
	SuccessRate   float64 `json:"success_rate"`
}

// Stats собирает сводную статистику по всем прокси.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{Total: len(p.byKey)}
	success := 0
	for _, proxy := range p.byKey {
		if proxy.IsActive {
			stats.Active++
		}
		if proxy.IsActive && proxy.IsHealthy {
			stats.Healthy++
		}
		stats.TotalRequests += proxy.TotalRequests
		success += proxy.SuccessCount
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(success) / float64(stats.TotalRequests) * 100
	}
	return stats
}

// LoadFromFile загружает прокси из текстового файла, по одному на
// строку. Пустые строки и строки-комментарии (#) пропускаются.
// Возвращает количество добавленных прокси.
func (p *Pool) LoadFromFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	added := 0
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		proxy, err := domain.ParseProxy(scanner.Text())
		if err != nil {
			p.logger.Warn("skipping malformed proxy line", "file", path, "line", lineNo, "error", err)
			continue
		}
		if proxy == nil {
			continue
		}
		if p.Add(proxy) {
			added++
		}
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("read proxy list: %w", err)
	}

	p.logger.Info("proxy list loaded", "file", path, "added", added)
	return added, nil
}
