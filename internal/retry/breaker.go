package retry

import (
	"sync"
	"time"
)

// BreakerState — состояние circuit breaker'а.
type BreakerState string

const (
	// BreakerClosed — нормальная работа, вызовы проходят.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen — ресурс считается недоступным, вызовы отклоняются сразу.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen — пробный режим после таймаута.
	BreakerHalfOpen BreakerState = "half_open"
)

// Значения по умолчанию для breaker'а.
const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultBreakerTimeout   = 60 * time.Second
)

// CircuitBreaker защищает один логический downstream-ресурс.
//
// Closed: счёт подряд идущих ошибок; при достижении FailureThreshold —
// переход в Open. Open: вызовы отклоняются; спустя Timeout чтение
// состояния переводит в HalfOpen. HalfOpen: SuccessThreshold успехов
// закрывают breaker, единственная ошибка немедленно открывает снова.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	timeout          time.Duration

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	// now подменяется в тестах.
	now func() time.Time
}

// BreakerConfig — конфигурация CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold — ошибок подряд до открытия (default: 5).
	FailureThreshold int

	// SuccessThreshold — успехов в HalfOpen до закрытия (default: 2).
	SuccessThreshold int

	// Timeout — время в Open до пробного режима (default: 60s).
	Timeout time.Duration
}

// NewCircuitBreaker создаёт закрытый breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	successThreshold := cfg.SuccessThreshold
	if successThreshold <= 0 {
		successThreshold = defaultSuccessThreshold
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// State возвращает текущее состояние.
// Из Open по истечении Timeout лениво переходит в HalfOpen —
// фоновый таймер не нужен.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

// stateLocked вычисляет состояние под cb.mu.
func (cb *CircuitBreaker) stateLocked() BreakerState {
	if cb.state == BreakerOpen && cb.now().Sub(cb.lastFailureTime) >= cb.timeout {
		cb.state = BreakerHalfOpen
		cb.successCount = 0
	}
	return cb.state
}

// RecordSuccess фиксирует успешную операцию.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case BreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	case BreakerClosed:
		cb.failureCount = 0
	}
}

// RecordFailure фиксирует ошибку операции.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.stateLocked() {
	case BreakerHalfOpen:
		// Единственная ошибка в пробном режиме открывает снова.
		cb.state = BreakerOpen
	case BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = BreakerOpen
		}
	}
}

// Allow проверяет, пропускает ли breaker вызов.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != BreakerOpen
}

// Execute выполняет fn под защитой breaker'а.
// В Open возвращает ErrCircuitOpen, не вызывая fn; иначе выполняет fn,
// фиксирует результат и пробрасывает ошибку fn после фиксации.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
