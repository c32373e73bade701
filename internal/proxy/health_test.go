package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
)

// fakeProber отвечает по таблице ключ → здоровье.
type fakeProber struct {
	healthy map[string]bool
}

func (p *fakeProber) Check(_ context.Context, proxy domain.Proxy) (bool, time.Duration) {
	return p.healthy[proxy.Key()], 10 * time.Millisecond
}

// --- HealthChecker Tests ---

func TestHealthChecker_Sweep(t *testing.T) {
	pool := newTestPool(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")
	// Нездоровый прокси возвращается в ротацию, умерший выпадает
	pool.MarkUnhealthy("10.0.0.3:8002")

	checker, err := NewHealthChecker(HealthCheckerConfig{
		Pool: pool,
		Prober: &fakeProber{healthy: map[string]bool{
			"10.0.0.1:8000": true,
			"10.0.0.2:8001": false,
			"10.0.0.3:8002": true,
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checker.Sweep(context.Background())

	for key, want := range map[string]bool{
		"10.0.0.1:8000": true,
		"10.0.0.2:8001": false,
		"10.0.0.3:8002": true,
	} {
		got, ok := pool.GetByAddress(key)
		if !ok {
			t.Fatalf("proxy %s not found", key)
		}
		if got.IsHealthy != want {
			t.Errorf("proxy %s: expected healthy=%v, got %v", key, want, got.IsHealthy)
		}
		if got.LastCheck == nil {
			t.Errorf("proxy %s: expected LastCheck to be set", key)
		}
	}
}

func TestHealthChecker_BadSchedule(t *testing.T) {
	_, err := NewHealthChecker(HealthCheckerConfig{
		Pool:     NewPool(nil),
		Schedule: "not a cron expression",
	})
	if err == nil {
		t.Error("expected error for malformed schedule")
	}
}

func TestHTTPProber_Check(t *testing.T) {
	// httptest-сервер играет роль прокси: для http-прокси GET уходит
	// на него с абсолютным URL цели
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"origin":"10.0.0.1"}`))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	proxy := domain.NewProxy(u.Hostname(), port, "http")

	prober := &HTTPProber{TestURL: "http://example.invalid/ip", Timeout: 2 * time.Second}
	healthy, elapsed := prober.Check(context.Background(), *proxy)
	if !healthy {
		t.Error("expected healthy: proxy responded")
	}
	if elapsed <= 0 {
		t.Error("expected positive response time")
	}
}

func TestHTTPProber_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	srv.Close()

	proxy := domain.NewProxy(u.Hostname(), port, "http")
	prober := &HTTPProber{TestURL: "http://example.invalid/ip", Timeout: time.Second}
	if healthy, _ := prober.Check(context.Background(), *proxy); healthy {
		t.Error("expected unhealthy: proxy is down")
	}
}
