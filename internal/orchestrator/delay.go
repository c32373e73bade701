package orchestrator

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
)

// delayedEntry — task с временем готовности к перепостановке.
type delayedEntry struct {
	task    *domain.Task
	readyAt time.Time
	index   int
}

// delayedHeap — min-heap по readyAt.
type delayedHeap []*delayedEntry

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool {
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedHeap) Push(x any) {
	e := x.(*delayedEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// delayScheduler держит отложенные повторы и возвращает их в очередь
// по наступлении времени готовности.
//
// Обслуживается собственной горутиной: backoff одного task не
// блокирует диспетчеризацию остальных.
type delayScheduler struct {
	mu   sync.Mutex
	heap delayedHeap

	// wake будит горутину при добавлении более раннего времени.
	wake chan struct{}

	// requeue вызывается по готовности task.
	requeue func(*domain.Task)
}

// newDelayScheduler создаёт планировщик отложенных повторов.
func newDelayScheduler(requeue func(*domain.Task)) *delayScheduler {
	return &delayScheduler{
		wake:    make(chan struct{}, 1),
		requeue: requeue,
	}
}

// Schedule ставит task на перепостановку не раньше readyAt.
func (s *delayScheduler) Schedule(task *domain.Task, readyAt time.Time) {
	s.mu.Lock()
	heap.Push(&s.heap, &delayedEntry{task: task, readyAt: readyAt})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending возвращает количество ожидающих повторов.
func (s *delayScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// Run обслуживает кучу до отмены контекста.
func (s *delayScheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		// Возвращаем в очередь всё созревшее, вычисляем ближайшее время.
		var wait time.Duration
		for {
			s.mu.Lock()
			if s.heap.Len() == 0 {
				s.mu.Unlock()
				wait = 0
				break
			}
			next := s.heap[0]
			now := time.Now()
			if next.readyAt.After(now) {
				s.mu.Unlock()
				wait = next.readyAt.Sub(now)
				break
			}
			heap.Pop(&s.heap)
			s.mu.Unlock()

			s.requeue(next.task)
		}

		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			case <-s.wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
		}
	}
}
