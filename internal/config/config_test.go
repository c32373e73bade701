package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pool.Size != 5 || cfg.Pool.MaxConcurrent != 10 {
		t.Errorf("unexpected pool defaults: %+v", cfg.Pool)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.Strategy != "exponential_jitter" {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.Timeout != 60*time.Second {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
	if cfg.Proxy.Strategy != "round_robin" || cfg.Proxy.HealthSchedule != "*/5 * * * *" {
		t.Errorf("unexpected proxy defaults: %+v", cfg.Proxy)
	}
	if cfg.HTTP.Address() != "0.0.0.0:8080" {
		t.Errorf("unexpected http address: %s", cfg.HTTP.Address())
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	content := `
pool:
  size: 12
  max_concurrent: 4
retry:
  max_retries: 7
  strategy: fixed
proxy:
  list_file: /etc/harvester/proxies.txt
  strategy: weighted
http:
  port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pool.Size != 12 || cfg.Pool.MaxConcurrent != 4 {
		t.Errorf("unexpected pool config: %+v", cfg.Pool)
	}
	if cfg.Retry.MaxRetries != 7 || cfg.Retry.Strategy != "fixed" {
		t.Errorf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Proxy.ListFile != "/etc/harvester/proxies.txt" || cfg.Proxy.Strategy != "weighted" {
		t.Errorf("unexpected proxy config: %+v", cfg.Proxy)
	}
	// Незатронутые поля остаются на defaults
	if cfg.HTTP.Port != 9090 || cfg.HTTP.Host != "0.0.0.0" {
		t.Errorf("unexpected http config: %+v", cfg.HTTP)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HARVESTER_POOL_SIZE", "42")
	t.Setenv("HARVESTER_MQ_URL", "amqp://broker:5672/")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pool.Size != 42 {
		t.Errorf("expected env override 42, got %d", cfg.Pool.Size)
	}
	if cfg.MQ.URL != "amqp://broker:5672/" {
		t.Errorf("expected env mq url, got %q", cfg.MQ.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/harvester.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
