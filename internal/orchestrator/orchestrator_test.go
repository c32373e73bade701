package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/retry"
	"github.com/shaiso/Harvester/internal/workerpool"
)

// --- In-memory TaskStore ---

// memStore — in-memory реализация TaskStore для тестов.
type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	// startErrs — сколько ближайших вызовов StartTask вернут ошибку.
	startErrs int
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *memStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := task.Snapshot()
	s.tasks[task.ID] = &clone
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	clone := task.Snapshot()
	return &clone, nil
}

func (s *memStore) Update(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	clone := task.Snapshot()
	s.tasks[task.ID] = &clone
	return nil
}

func (s *memStore) GetPending(_ context.Context, limit int) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Task
	for _, task := range s.tasks {
		if task.Status == domain.TaskStatusPending && len(out) < limit {
			clone := task.Snapshot()
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memStore) GetByStatus(_ context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Task
	for _, task := range s.tasks {
		if task.Status == status && len(out) < limit {
			clone := task.Snapshot()
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memStore) StartTask(_ context.Context, id uuid.UUID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErrs > 0 {
		s.startErrs--
		return errors.New("store unavailable")
	}
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	task.MarkRunning(workerID)
	return nil
}

func (s *memStore) CompleteTask(_ context.Context, id uuid.UUID, success bool, items int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if success {
		task.MarkSuccess(items)
	} else {
		task.MarkFailed(errMsg)
	}
	return nil
}

func (s *memStore) RetryTask(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if !task.CanRetry() {
		return nil, nil
	}
	task.ResetForRetry(task.ErrorMessage)
	clone := task.Snapshot()
	return &clone, nil
}

func (s *memStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks), nil
}

func (s *memStore) Stats(_ context.Context) (TaskStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := TaskStats{Total: len(s.tasks)}
	for _, task := range s.tasks {
		switch task.Status {
		case domain.TaskStatusPending, domain.TaskStatusRetry:
			stats.Pending++
		case domain.TaskStatusRunning:
			stats.Running++
		case domain.TaskStatusSuccess:
			stats.Success++
		case domain.TaskStatusFailed:
			stats.Failed++
		case domain.TaskStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// --- Helpers ---

// fastPolicy — политика повторов с минимальной задержкой для тестов.
func fastPolicy(maxRetries int) *retry.Policy {
	return &retry.Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Strategy:     retry.StrategyFixed,
		NonRetryable: []retry.Kind{retry.KindFatal},
	}
}

func newTestOrchestrator(t *testing.T, store TaskStore, executor workerpool.TaskExecutor, policy *retry.Policy) *Orchestrator {
	t.Helper()

	pool := workerpool.New(workerpool.Config{
		PoolSize:      2,
		MaxConcurrent: 2,
		Executor:      executor,
	})
	orch := New(Config{
		Store:  store,
		Pool:   pool,
		Policy: policy,
	})

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(orch.Stop)
	return orch
}

// waitForStatus ждёт, пока task в сторе не достигнет статуса.
func waitForStatus(t *testing.T, store TaskStore, id uuid.UUID, status domain.TaskStatus) *domain.Task {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(context.Background(), id)
		if err == nil && task.Status == status {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := store.Get(context.Background(), id)
	t.Fatalf("task did not reach %s, current: %+v", status, task)
	return nil
}

// --- Orchestrator Tests ---

func TestOrchestrator_SubmitAndComplete(t *testing.T) {
	store := newMemStore()
	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		return workerpool.Result{Success: true, ItemsScraped: 42}, nil
	})
	orch := newTestOrchestrator(t, store, executor, fastPolicy(3))

	id, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:      "happy",
		Type:      domain.TaskTypeScrape,
		TargetURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	task := waitForStatus(t, store, id, domain.TaskStatusSuccess)
	if task.ItemsScraped != 42 {
		t.Errorf("expected 42 items, got %d", task.ItemsScraped)
	}
	if task.RetryCount != 0 {
		t.Errorf("expected 0 retries, got %d", task.RetryCount)
	}
}

func TestOrchestrator_RetryThenSucceed(t *testing.T) {
	store := newMemStore()

	// Первые два выполнения падают, третье успешно
	var attempts atomic.Int32
	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		if attempts.Add(1) <= 2 {
			return workerpool.Result{}, errors.New("temporary glitch")
		}
		return workerpool.Result{Success: true, ItemsScraped: 1}, nil
	})
	orch := newTestOrchestrator(t, store, executor, fastPolicy(3))

	id, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:       "flaky",
		Type:       domain.TaskTypeScrape,
		TargetURL:  "https://example.com",
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	task := waitForStatus(t, store, id, domain.TaskStatusSuccess)
	if task.RetryCount != 2 {
		t.Errorf("expected 2 retries, got %d", task.RetryCount)
	}
}

func TestOrchestrator_RetriesExhausted(t *testing.T) {
	store := newMemStore()
	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		return workerpool.Result{}, errors.New("always broken")
	})
	orch := newTestOrchestrator(t, store, executor, fastPolicy(2))

	id, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:       "doomed",
		Type:       domain.TaskTypeScrape,
		TargetURL:  "https://example.com",
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	task := waitForStatus(t, store, id, domain.TaskStatusFailed)
	if task.RetryCount != 2 {
		t.Errorf("expected retry_count 2, got %d", task.RetryCount)
	}
	if task.ErrorMessage == "" {
		t.Error("expected error message to be set")
	}
}

func TestOrchestrator_FatalErrorNotRetried(t *testing.T) {
	store := newMemStore()
	var attempts atomic.Int32
	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		attempts.Add(1)
		return workerpool.Result{}, retry.Fatal(errors.New("bad task config"))
	})
	orch := newTestOrchestrator(t, store, executor, fastPolicy(3))

	id, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:       "broken-config",
		Type:       domain.TaskTypeScrape,
		TargetURL:  "https://example.com",
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	task := waitForStatus(t, store, id, domain.TaskStatusFailed)
	if task.RetryCount != 0 {
		t.Errorf("fatal error should not be retried, retry_count=%d", task.RetryCount)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("expected single attempt, got %d", n)
	}
}

func TestOrchestrator_NoCapacityDoesNotBurnRetries(t *testing.T) {
	store := newMemStore()

	// Единственный воркер занят блокирующим task; лимит конкурентности
	// выше размера пула, так что второй task проходит семафор и
	// упирается в отсутствие свободного воркера.
	block := make(chan struct{})
	started := make(chan struct{})
	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		if task.Name == "blocker" {
			close(started)
			<-block
		}
		return workerpool.Result{Success: true}, nil
	})

	pool := workerpool.New(workerpool.Config{PoolSize: 1, MaxConcurrent: 2, Executor: executor})
	orch := New(Config{Store: store, Pool: pool, Policy: fastPolicy(1)})
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	if _, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:      "blocker",
		Type:      domain.TaskTypeScrape,
		TargetURL: "https://example.com",
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-started

	// MaxRetries: 1 — одно списание бюджета за время голодания
	// уронило бы task в FAILED без единого выполнения.
	id, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:       "starved",
		Type:       domain.TaskTypeScrape,
		TargetURL:  "https://example.com",
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Даём task'у несколько циклов перепостановки под занятым пулом.
	time.Sleep(50 * time.Millisecond)
	close(block)

	task := waitForStatus(t, store, id, domain.TaskStatusSuccess)
	if task.RetryCount != 0 {
		t.Errorf("starvation must not consume retries, retry_count=%d", task.RetryCount)
	}
}

func TestOrchestrator_StoreBlipDoesNotParkTask(t *testing.T) {
	store := newMemStore()
	store.startErrs = 2

	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		return workerpool.Result{Success: true}, nil
	})
	orch := newTestOrchestrator(t, store, executor, fastPolicy(3))

	id, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:      "blipped",
		Type:      domain.TaskTypeScrape,
		TargetURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Два сбоя StartTask подряд: task не теряется до рестарта,
	// а перепостанавливается и доезжает до SUCCESS без повторов.
	task := waitForStatus(t, store, id, domain.TaskStatusSuccess)
	if task.RetryCount != 0 {
		t.Errorf("store errors must not consume retries, retry_count=%d", task.RetryCount)
	}
}

func TestOrchestrator_CancelPendingTask(t *testing.T) {
	store := newMemStore()
	orch := New(Config{
		Store:  store,
		Pool:   workerpool.New(workerpool.Config{Executor: nil}),
		Policy: fastPolicy(3),
	})

	// Оркестратор не запущен: task остаётся PENDING
	task, err := orch.CreateTask(context.Background(), CreateParams{
		Name:      "to-cancel",
		Type:      domain.TaskTypeScrape,
		TargetURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	orch.SubmitTask(task)

	if err := orch.CancelTask(context.Background(), task.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	got, err := store.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if orch.QueueSize() != 0 {
		t.Errorf("cancelled task should leave the queue, size=%d", orch.QueueSize())
	}

	// Повторная отмена терминального task — ошибка
	if err := orch.CancelTask(context.Background(), task.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestOrchestrator_CancelUnknownTask(t *testing.T) {
	orch := New(Config{
		Store: newMemStore(),
		Pool:  workerpool.New(workerpool.Config{}),
	})

	if err := orch.CancelTask(context.Background(), uuid.New()); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestOrchestrator_LoadsPendingOnStart(t *testing.T) {
	store := newMemStore()

	// Task лежит в сторе до запуска оркестратора
	stale := domain.NewTask("stale", domain.TaskTypeScrape, "https://example.com")
	stale.MaxRetries = 3
	if err := store.Create(context.Background(), stale); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		return workerpool.Result{Success: true}, nil
	})
	newTestOrchestrator(t, store, executor, fastPolicy(3))

	waitForStatus(t, store, stale.ID, domain.TaskStatusSuccess)
}

func TestOrchestrator_StartTwice(t *testing.T) {
	store := newMemStore()
	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		return workerpool.Result{Success: true}, nil
	})
	orch := newTestOrchestrator(t, store, executor, fastPolicy(3))

	if err := orch.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

// --- EventBus Tests ---

func TestEventBus_EmitsLifecycleEvents(t *testing.T) {
	store := newMemStore()
	executor := workerpool.ExecutorFunc(func(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
		return workerpool.Result{Success: true}, nil
	})

	pool := workerpool.New(workerpool.Config{PoolSize: 1, MaxConcurrent: 1, Executor: executor})
	orch := New(Config{Store: store, Pool: pool, Policy: fastPolicy(3)})

	var mu sync.Mutex
	var seen []EventType
	orch.Events().SubscribeAll(func(evt Event) {
		mu.Lock()
		seen = append(seen, evt.Type)
		mu.Unlock()
	})

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(orch.Stop)

	id, err := orch.SubmitNewTask(context.Background(), CreateParams{
		Name:      "observed",
		Type:      domain.TaskTypeScrape,
		TargetURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitForStatus(t, store, id, domain.TaskStatusSuccess)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != EventTaskStarted || seen[1] != EventTaskCompleted {
		t.Errorf("unexpected event sequence: %v", seen)
	}
}

func TestEventBus_ListenerPanicIsolated(t *testing.T) {
	bus := NewEventBus(nil)

	var called atomic.Bool
	bus.Subscribe(EventTaskStarted, func(Event) {
		panic("listener bug")
	})
	bus.Subscribe(EventTaskStarted, func(Event) {
		called.Store(true)
	})

	task := domain.NewTask("x", domain.TaskTypeScrape, "https://example.com")
	bus.Emit(EventTaskStarted, task.Snapshot())

	if !called.Load() {
		t.Error("panic in one listener should not block the next")
	}
}
