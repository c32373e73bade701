package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — конфигурация harvesterd, собранная один раз при старте
// и передаваемая в конструкторы компонентов.
type Config struct {
	Pool    PoolConfig    `mapstructure:"pool"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	MQ      MQConfig      `mapstructure:"mq"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

// PoolConfig — параметры пула воркеров.
type PoolConfig struct {
	// Size — количество воркеров.
	Size int `mapstructure:"size"`

	// MaxConcurrent — ограничение одновременных выполнений,
	// независимое от Size.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// RetryConfig — параметры политики повторов.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Strategy     string        `mapstructure:"strategy"`
	Multiplier   float64       `mapstructure:"multiplier"`
	JitterMin    float64       `mapstructure:"jitter_min"`
	JitterMax    float64       `mapstructure:"jitter_max"`
}

// BreakerConfig — параметры circuit breaker'ов целевых хостов.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ProxyConfig — параметры пула прокси и его ротации.
type ProxyConfig struct {
	// ListFile — путь к файлу со списком прокси. Пусто — без прокси.
	ListFile string `mapstructure:"list_file"`

	// Strategy — стратегия ротации.
	Strategy string `mapstructure:"strategy"`

	// HealthSchedule — cron-расписание проверок здоровья.
	HealthSchedule string `mapstructure:"health_schedule"`

	// HealthTestURL — URL пробного запроса.
	HealthTestURL string `mapstructure:"health_test_url"`

	// HealthMaxConcurrent — ограничение одновременных проверок.
	HealthMaxConcurrent int `mapstructure:"health_max_concurrent"`
}

// MQConfig — параметры RabbitMQ.
type MQConfig struct {
	// URL — адрес брокера. Пусто — работа без MQ (только программный submit).
	URL string `mapstructure:"url"`

	// Prefetch — предварительная загрузка consumer'а submissions.
	Prefetch int `mapstructure:"prefetch"`
}

// HTTPConfig — параметры служебного HTTP-сервера (/healthz, /metrics).
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (h *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// setDefaults задаёт значения по умолчанию.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.size", 5)
	v.SetDefault("pool.max_concurrent", 10)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", time.Second)
	v.SetDefault("retry.max_delay", 60*time.Second)
	v.SetDefault("retry.strategy", "exponential_jitter")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_min", 0.5)
	v.SetDefault("retry.jitter_max", 1.5)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.timeout", 60*time.Second)

	v.SetDefault("proxy.strategy", "round_robin")
	v.SetDefault("proxy.health_schedule", "*/5 * * * *")
	v.SetDefault("proxy.health_max_concurrent", 10)

	v.SetDefault("mq.prefetch", 10)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
}

// Load читает конфигурацию из файла (если путь не пуст) и переменных
// окружения с префиксом HARVESTER_ (HARVESTER_POOL_SIZE и т.п.).
// Переменные окружения имеют приоритет над файлом.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
