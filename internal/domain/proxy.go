package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Proxy — прокси-сервер из пула.
//
// Владеет Proxy исключительно ProxyPool; счётчики мутируются только
// под его блокировкой. Rotator держит ссылку на «текущий» прокси,
// но не владеет им.
type Proxy struct {
	// Address — адрес прокси.
	Address string `json:"address"`

	// Port — порт прокси.
	Port int `json:"port"`

	// Protocol — протокол: http, https, socks4, socks5.
	Protocol string `json:"protocol"`

	// Username, Password — опциональная авторизация.
	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	// Country — опциональная метка страны.
	Country string `json:"country,omitempty"`

	// IsActive — прокси включён в ротацию.
	IsActive bool `json:"is_active"`

	// IsHealthy — прокси прошёл последнюю проверку.
	IsHealthy bool `json:"is_healthy"`

	// ResponseTime — время ответа по последней проверке.
	// 0 означает «не измерялось».
	ResponseTime time.Duration `json:"response_time"`

	// SuccessCount, FailCount, TotalRequests — счётчики запросов.
	SuccessCount  int `json:"success_count"`
	FailCount     int `json:"fail_count"`
	TotalRequests int `json:"total_requests"`

	// LastCheck — время последней health-проверки.
	LastCheck *time.Time `json:"last_check,omitempty"`

	// LastUsed — время последнего использования в запросе.
	LastUsed *time.Time `json:"last_used,omitempty"`
}

// NewProxy создаёт активный прокси, считающийся здоровым до первой проверки.
func NewProxy(address string, port int, protocol string) *Proxy {
	if protocol == "" {
		protocol = "http"
	}
	return &Proxy{
		Address:   address,
		Port:      port,
		Protocol:  protocol,
		IsActive:  true,
		IsHealthy: true,
	}
}

// Key возвращает ключ дедупликации пула: address:port.
func (p *Proxy) Key() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// URL возвращает полный URL прокси, включая авторизацию.
func (p *Proxy) URL() string {
	if p.Username != "" && p.Password != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", p.Protocol, p.Username, p.Password, p.Address, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Address, p.Port)
}

// RedactedURL возвращает URL прокси без учётных данных (для логов).
func (p *Proxy) RedactedURL() string {
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Address, p.Port)
}

// SuccessRate возвращает долю успешных запросов в процентах.
func (p *Proxy) SuccessRate() float64 {
	if p.TotalRequests == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.TotalRequests) * 100
}

// proxyURLPattern — формат scheme://[user:pass@]host:port.
var proxyURLPattern = regexp.MustCompile(`^(https?|socks[45]?)://(?:([^:]+):([^@]+)@)?([^:]+):(\d+)$`)

// ParseProxy парсит прокси из строки.
//
// Поддерживаемые форматы:
//   - ip:port
//   - ip:port:username:password
//   - protocol://ip:port
//   - protocol://username:password@ip:port
//
// Пустые строки и строки-комментарии (#) дают nil без ошибки.
func ParseProxy(s string) (*Proxy, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "#") {
		return nil, nil
	}

	if m := proxyURLPattern.FindStringSubmatch(s); m != nil {
		port, err := strconv.Atoi(m[5])
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port %q: %w", m[5], err)
		}
		p := NewProxy(m[4], port, m[1])
		p.Username = m[2]
		p.Password = m[3]
		return p, nil
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port %q: %w", parts[1], err)
		}
		return NewProxy(parts[0], port, "http"), nil
	case 4:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port %q: %w", parts[1], err)
		}
		p := NewProxy(parts[0], port, "http")
		p.Username = parts[2]
		p.Password = parts[3]
		return p, nil
	}

	return nil, fmt.Errorf("invalid proxy format: %q", s)
}
