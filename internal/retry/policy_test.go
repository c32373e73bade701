package retry

import (
	"errors"
	"testing"
	"time"
)

func TestPolicy_Delay_Fixed(t *testing.T) {
	p := &Policy{Strategy: StrategyFixed, InitialDelay: 2 * time.Second, MaxDelay: time.Minute}

	for attempt := 0; attempt < 5; attempt++ {
		if d := p.Delay(attempt); d != 2*time.Second {
			t.Errorf("attempt %d: expected 2s, got %v", attempt, d)
		}
	}
}

func TestPolicy_Delay_Linear(t *testing.T) {
	p := &Policy{Strategy: StrategyLinear, InitialDelay: time.Second, MaxDelay: time.Minute}

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	for attempt, expected := range want {
		if d := p.Delay(attempt); d != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, d)
		}
	}
}

func TestPolicy_Delay_Exponential(t *testing.T) {
	p := &Policy{
		Strategy:     StrategyExponential,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if d := p.Delay(attempt); d != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, d)
		}
	}
}

func TestPolicy_Delay_CappedAtMax(t *testing.T) {
	p := &Policy{
		Strategy:     StrategyExponential,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	// 2^10 секунд давно за пределами MaxDelay
	if d := p.Delay(10); d != 10*time.Second {
		t.Errorf("expected cap 10s, got %v", d)
	}
	// Большие attempt не переполняются
	if d := p.Delay(200); d != 10*time.Second {
		t.Errorf("expected cap 10s for huge attempt, got %v", d)
	}
}

func TestPolicy_Delay_NonDecreasing(t *testing.T) {
	for _, strategy := range []Strategy{StrategyLinear, StrategyExponential} {
		p := &Policy{Strategy: strategy, InitialDelay: time.Second, MaxDelay: time.Hour, Multiplier: 2.0}

		prev := time.Duration(0)
		for attempt := 0; attempt < 10; attempt++ {
			d := p.Delay(attempt)
			if d < prev {
				t.Errorf("%s: delay decreased at attempt %d: %v < %v", strategy, attempt, d, prev)
			}
			prev = d
		}
	}
}

func TestPolicy_Delay_JitterWithinRange(t *testing.T) {
	p := &Policy{
		Strategy:     StrategyExponentialJitter,
		InitialDelay: time.Second,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		JitterMin:    0.5,
		JitterMax:    1.5,
	}

	// Базовая задержка для attempt=2 — 4s; джиттер держит её в (2s, 6s)
	for i := 0; i < 100; i++ {
		d := p.Delay(2)
		if d < 2*time.Second || d > 6*time.Second {
			t.Fatalf("jitter delay out of range: %v", d)
		}
	}
}

func TestPolicy_ShouldRetry_NonRetryableWins(t *testing.T) {
	p := &Policy{
		NonRetryable: []Kind{KindFatal},
		Retryable:    []Kind{KindFatal, KindTransient},
	}

	// fatal в обоих списках — NonRetryable имеет приоритет
	if p.ShouldRetry(Fatal(errors.New("boom"))) {
		t.Error("fatal error should not be retried")
	}
	if !p.ShouldRetry(Transient(errors.New("flaky"))) {
		t.Error("transient error should be retried")
	}
}

func TestPolicy_ShouldRetry_UntaggedDefaultsTransient(t *testing.T) {
	p := DefaultPolicy()

	if !p.ShouldRetry(errors.New("plain error")) {
		t.Error("untagged error should be retried by default")
	}
	if p.ShouldRetry(nil) {
		t.Error("nil error should not be retried")
	}
}

func TestPolicy_ShouldRetry_EmptyRetryableAllowsAll(t *testing.T) {
	p := &Policy{NonRetryable: []Kind{KindFatal}}

	if !p.ShouldRetry(Exhausted(errors.New("no slots"))) {
		t.Error("exhausted should be retryable when Retryable list is empty")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(Fatal(errors.New("x"))) != KindFatal {
		t.Error("expected KindFatal")
	}
	// Тег достаётся и из обёрнутой ошибки
	wrapped := errors.Join(errors.New("ctx"), Exhausted(errors.New("x")))
	if KindOf(wrapped) != KindResourceExhausted {
		t.Error("expected KindResourceExhausted through wrapping")
	}
	if KindOf(errors.New("plain")) != KindTransient {
		t.Error("untagged error should default to KindTransient")
	}
}
