package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
)

func newTestTask(name string, priority int) *domain.Task {
	task := domain.NewTask(name, domain.TaskTypeScrape, "https://example.com")
	task.Priority = priority
	return task
}

func TestQueue_PriorityOrder(t *testing.T) {
	q := New()

	// Кладём с приоритетами 5, 1, 9 — снимаем 9, 5, 1
	q.Put(newTestTask("p5", 5))
	q.Put(newTestTask("p1", 1))
	q.Put(newTestTask("p9", 9))

	want := []string{"p9", "p5", "p1"}
	for _, name := range want {
		task, err := q.GetNoWait()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task.Name != name {
			t.Errorf("expected %s, got %s", name, task.Name)
		}
	}
}

func TestQueue_FIFOTieBreak(t *testing.T) {
	q := New()

	// Равный приоритет — порядок постановки (FIFO)
	for _, name := range []string{"first", "second", "third"} {
		q.Put(newTestTask(name, 7))
	}

	for _, want := range []string{"first", "second", "third"} {
		task, err := q.GetNoWait()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task.Name != want {
			t.Errorf("expected %s, got %s", want, task.Name)
		}
	}
}

func TestQueue_IdempotentPut(t *testing.T) {
	q := New()
	task := newTestTask("dup", 1)

	if !q.Put(task) {
		t.Fatal("first put should succeed")
	}
	if q.Put(task) {
		t.Error("second put of same task should be rejected")
	}
	if q.Size() != 1 {
		t.Errorf("expected size 1, got %d", q.Size())
	}
}

func TestQueue_GetNoWait_Empty(t *testing.T) {
	q := New()

	if _, err := q.GetNoWait(); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestQueue_Get_BlocksUntilPut(t *testing.T) {
	q := New()

	done := make(chan *domain.Task, 1)
	go func() {
		task, err := q.Get(context.Background())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- task
	}()

	// Даём горутине время заблокироваться
	time.Sleep(20 * time.Millisecond)
	q.Put(newTestTask("late", 3))

	select {
	case task := <-done:
		if task.Name != "late" {
			t.Errorf("expected late, got %s", task.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up after Put")
	}
}

func TestQueue_Get_ContextCancelled(t *testing.T) {
	q := New()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Get(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not return after cancel")
	}
}

func TestQueue_Remove(t *testing.T) {
	q := New()
	task := newTestTask("victim", 5)
	q.Put(task)
	q.Put(newTestTask("survivor", 1))

	if !q.Remove(task.ID) {
		t.Fatal("remove should succeed")
	}
	if q.Remove(task.ID) {
		t.Error("second remove should fail")
	}
	if q.Contains(task.ID) {
		t.Error("removed task should not be in queue")
	}

	got, err := q.GetNoWait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "survivor" {
		t.Errorf("expected survivor, got %s", got.Name)
	}
}

func TestQueue_Close(t *testing.T) {
	q := New()
	q.Put(newTestTask("leftover", 1))
	q.Close()

	if _, err := q.Get(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Элементы не теряются: GetNoWait работает после Close
	task, err := q.GetNoWait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Name != "leftover" {
		t.Errorf("expected leftover, got %s", task.Name)
	}
}
