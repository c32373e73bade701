package retry

import (
	"math/rand"
	"time"
)

// Strategy — стратегия вычисления backoff-задержки.
type Strategy string

const (
	// StrategyFixed — постоянная задержка InitialDelay.
	StrategyFixed Strategy = "fixed"

	// StrategyLinear — InitialDelay × (attempt+1).
	StrategyLinear Strategy = "linear"

	// StrategyExponential — InitialDelay × Multiplier^attempt.
	StrategyExponential Strategy = "exponential"

	// StrategyExponentialJitter — экспоненциальная задержка,
	// умноженная на uniform(JitterMin, JitterMax).
	StrategyExponentialJitter Strategy = "exponential_jitter"
)

// Значения по умолчанию.
const (
	defaultMaxRetries   = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 60 * time.Second
	defaultMultiplier   = 2.0
	defaultJitterMin    = 0.5
	defaultJitterMax    = 1.5
)

// Policy — политика повторов. Value object: создаётся один раз
// и передаётся по ссылке, собственного состояния не имеет.
type Policy struct {
	// MaxRetries — бюджет повторов.
	MaxRetries int

	// InitialDelay — базовая задержка.
	InitialDelay time.Duration

	// MaxDelay — верхняя граница задержки.
	MaxDelay time.Duration

	// Strategy — стратегия роста задержки.
	Strategy Strategy

	// Multiplier — множитель экспоненциальных стратегий.
	Multiplier float64

	// JitterMin, JitterMax — диапазон джиттера для StrategyExponentialJitter.
	JitterMin float64
	JitterMax float64

	// NonRetryable — теги, при которых повтор запрещён.
	// Имеет приоритет над Retryable.
	NonRetryable []Kind

	// Retryable — теги, при которых повтор разрешён.
	// Пустой список означает «повторять всё, что не в NonRetryable».
	Retryable []Kind
}

// DefaultPolicy возвращает политику по умолчанию:
// 3 повтора, экспоненциальный backoff с джиттером, fatal не повторяется.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   defaultMaxRetries,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Strategy:     StrategyExponentialJitter,
		Multiplier:   defaultMultiplier,
		JitterMin:    defaultJitterMin,
		JitterMax:    defaultJitterMax,
		NonRetryable: []Kind{KindFatal},
	}
}

// Delay вычисляет задержку перед повтором номер attempt (с нуля).
// Результат всегда ограничен MaxDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = defaultMultiplier
	}

	var delay time.Duration
	switch p.Strategy {
	case StrategyLinear:
		delay = initial * time.Duration(attempt+1)
	case StrategyExponential:
		delay = scale(initial, pow(multiplier, attempt))
	case StrategyExponentialJitter:
		jitterMin, jitterMax := p.JitterMin, p.JitterMax
		if jitterMin <= 0 || jitterMax < jitterMin {
			jitterMin, jitterMax = defaultJitterMin, defaultJitterMax
		}
		jitter := jitterMin + rand.Float64()*(jitterMax-jitterMin)
		delay = scale(initial, pow(multiplier, attempt)*jitter)
	default:
		// StrategyFixed и неизвестные стратегии.
		delay = initial
	}

	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

// ShouldRetry решает, повторять ли операцию после ошибки.
// NonRetryable-тег запрещает повтор независимо от Retryable.
func (p *Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	kind := KindOf(err)
	for _, k := range p.NonRetryable {
		if kind == k {
			return false
		}
	}
	if len(p.Retryable) == 0 {
		return true
	}
	for _, k := range p.Retryable {
		if kind == k {
			return true
		}
	}
	return false
}

// pow — целая степень для множителя backoff.
func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
		// Дальше умножать незачем: Delay всё равно обрежет по MaxDelay.
		if result > 1e9 {
			return result
		}
	}
	return result
}

// scale умножает Duration на float с защитой от переполнения.
func scale(d time.Duration, factor float64) time.Duration {
	result := float64(d) * factor
	if result > float64(1<<62) {
		return 1 << 62
	}
	return time.Duration(result)
}
