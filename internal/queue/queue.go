package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Harvester/internal/domain"
)

// Ошибки очереди.
var (
	// ErrEmpty — очередь пуста (для неблокирующего GetNoWait).
	ErrEmpty = errors.New("queue is empty")

	// ErrClosed — очередь закрыта, Get невозможен.
	ErrClosed = errors.New("queue is closed")
)

// item — элемент кучи: task плюс ключ сортировки (priority, seq).
type item struct {
	task *domain.Task
	seq  uint64
	// index — позиция в куче, поддерживается heap.Interface.
	index int
}

// taskHeap упорядочивает по убыванию приоритета,
// при равенстве — по возрастанию sequence number (FIFO).
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// TaskQueue — приоритетная очередь tasks, безопасная для конкурентного
// доступа. Get блокируется до появления элемента или отмены контекста.
type TaskQueue struct {
	mu     sync.Mutex
	heap   taskHeap
	byID   map[uuid.UUID]*item
	seq    uint64
	closed bool

	// notify будит ожидающих в Get. Буфер 1: достаточно одного
	// «толчка», ожидающие перепроверяют кучу под мьютексом.
	notify chan struct{}
}

// New создаёт пустую очередь.
func New() *TaskQueue {
	return &TaskQueue{
		byID:   make(map[uuid.UUID]*item),
		notify: make(chan struct{}, 1),
	}
}

// Put добавляет task в очередь.
// Возвращает false, если task с таким ID уже находится в очереди.
func (q *TaskQueue) Put(task *domain.Task) bool {
	q.mu.Lock()
	if _, ok := q.byID[task.ID]; ok {
		q.mu.Unlock()
		return false
	}

	q.seq++
	it := &item{task: task, seq: q.seq}
	heap.Push(&q.heap, it)
	q.byID[task.ID] = it

	// Будим одного ожидающего. Неблокирующая отправка под мьютексом:
	// после Close канал закрыт, сюда уже не попадаем.
	if !q.closed {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()
	return true
}

// Get блокируется до появления task и снимает элемент с наибольшим
// приоритетом. Возвращает ошибку контекста при отмене и ErrClosed
// после Close.
func (q *TaskQueue) Get(ctx context.Context) (*domain.Task, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if q.heap.Len() > 0 {
			task := q.popLocked()
			q.mu.Unlock()
			return task, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// GetNoWait снимает элемент с наибольшим приоритетом или возвращает
// ErrEmpty, не блокируясь.
func (q *TaskQueue) GetNoWait() (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil, ErrEmpty
	}
	return q.popLocked(), nil
}

// popLocked снимает вершину кучи. Вызывается под q.mu.
func (q *TaskQueue) popLocked() *domain.Task {
	it := heap.Pop(&q.heap).(*item)
	delete(q.byID, it.task.ID)

	// Очередь не опустела — передаём сигнал следующему ожидающему,
	// иначе при нескольких ожидающих токен может потеряться.
	if q.heap.Len() > 0 && !q.closed {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return it.task
}

// Remove удаляет task из очереди по ID.
// Возвращает false, если task в очереди нет.
func (q *TaskQueue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byID, id)
	return true
}

// Contains проверяет наличие task в очереди.
func (q *TaskQueue) Contains(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.byID[id]
	return ok
}

// Size возвращает количество tasks в очереди.
func (q *TaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.heap.Len()
}

// IsEmpty проверяет, пуста ли очередь.
func (q *TaskQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Close закрывает очередь: все ожидающие Get получают ErrClosed.
// Элементы в очереди не теряются и доступны через GetNoWait.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.notify)
	q.mu.Unlock()
}
