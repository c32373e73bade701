package workerpool

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/Harvester/internal/domain"
)

func newTestTask(name string) *domain.Task {
	return domain.NewTask(name, domain.TaskTypeScrape, "https://example.com")
}

// okExecutor всегда успешен.
var okExecutor = ExecutorFunc(func(ctx context.Context, task *domain.Task) (Result, error) {
	return Result{Success: true, ItemsScraped: 1}, nil
})

func TestWorker_Execute_Success(t *testing.T) {
	w := NewWorker("worker-1", okExecutor, nil)

	result, err := w.Execute(context.Background(), newTestTask("ok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.ItemsScraped != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if w.State() != StateIdle {
		t.Errorf("expected idle after success, got %s", w.State())
	}

	stats := w.Stats()
	if stats.TasksCompleted != 1 || stats.TasksFailed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWorker_Execute_Failure(t *testing.T) {
	boom := errors.New("boom")
	w := NewWorker("worker-1", ExecutorFunc(func(ctx context.Context, task *domain.Task) (Result, error) {
		return Result{}, boom
	}), nil)

	if _, err := w.Execute(context.Background(), newTestTask("fail")); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// Обычная ошибка возвращает воркера в Idle
	if w.State() != StateIdle {
		t.Errorf("expected idle after failure, got %s", w.State())
	}

	stats := w.Stats()
	if stats.TasksFailed != 1 {
		t.Errorf("expected 1 failed, got %d", stats.TasksFailed)
	}
	if len(stats.RecentErrors) != 1 || stats.RecentErrors[0] != "boom" {
		t.Errorf("unexpected recent errors: %v", stats.RecentErrors)
	}
}

func TestWorker_Execute_PanicIsSticky(t *testing.T) {
	w := NewWorker("worker-1", ExecutorFunc(func(ctx context.Context, task *domain.Task) (Result, error) {
		panic("kaboom")
	}), nil)

	_, err := w.Execute(context.Background(), newTestTask("panic"))
	if !errors.Is(err, ErrExecutorPanic) {
		t.Fatalf("expected ErrExecutorPanic, got %v", err)
	}

	// Паника — липкий Error до явного сброса
	if w.State() != StateError {
		t.Errorf("expected error state, got %s", w.State())
	}
	if w.IsAvailable() {
		t.Error("errored worker should not be available")
	}

	w.ClearError()
	if w.State() != StateIdle {
		t.Errorf("expected idle after ClearError, got %s", w.State())
	}
}

func TestWorker_Execute_NotIdle(t *testing.T) {
	w := NewWorker("worker-1", okExecutor, nil)
	if err := w.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	if _, err := w.Execute(context.Background(), newTestTask("x")); !errors.Is(err, ErrWorkerNotIdle) {
		t.Errorf("expected ErrWorkerNotIdle, got %v", err)
	}
}

func TestWorker_PauseResume(t *testing.T) {
	w := NewWorker("worker-1", okExecutor, nil)

	if err := w.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if w.State() != StatePaused {
		t.Errorf("expected paused, got %s", w.State())
	}

	// Повторный Pause из Paused — ошибка
	if err := w.Pause(); err == nil {
		t.Error("pause of paused worker should fail")
	}

	if err := w.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if w.State() != StateIdle {
		t.Errorf("expected idle, got %s", w.State())
	}

	if err := w.Resume(); !errors.Is(err, ErrWorkerNotIdle) {
		t.Errorf("resume of idle worker should fail, got %v", err)
	}
}

func TestWorkerStats_Rates(t *testing.T) {
	stats := &WorkerStats{TasksCompleted: 3, TasksFailed: 1}

	if rate := stats.SuccessRate(); rate != 75.0 {
		t.Errorf("expected 75%%, got %v", rate)
	}

	empty := &WorkerStats{}
	if rate := empty.SuccessRate(); rate != 0 {
		t.Errorf("expected 0 for empty stats, got %v", rate)
	}
	if avg := empty.AvgDuration(); avg != 0 {
		t.Errorf("expected 0 avg for empty stats, got %v", avg)
	}
}

func TestWorker_RecentErrorsBounded(t *testing.T) {
	w := NewWorker("worker-1", ExecutorFunc(func(ctx context.Context, task *domain.Task) (Result, error) {
		return Result{}, errors.New(task.Name)
	}), nil)

	for _, name := range []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"} {
		w.Execute(context.Background(), newTestTask(name))
	}

	stats := w.Stats()
	if len(stats.RecentErrors) != maxRecentErrors {
		t.Fatalf("expected %d recent errors, got %d", maxRecentErrors, len(stats.RecentErrors))
	}
	// Остаются последние
	if stats.RecentErrors[0] != "e3" || stats.RecentErrors[4] != "e7" {
		t.Errorf("unexpected recent errors: %v", stats.RecentErrors)
	}
}
