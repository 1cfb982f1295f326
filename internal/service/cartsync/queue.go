package cartsync

import (
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// OperationQueue хранит в порядке FIFO операции, не дошедших до сервиса корзины.
// Живёт только в памяти сессии. Не потокобезопасен, защищается мьютексом Engine.
type OperationQueue struct {
	capacity int
	ops      []domain.QueuedOperation
}

// NewOperationQueue создаёт очередь заданной ёмкости.
func NewOperationQueue(capacity int) *OperationQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &OperationQueue{capacity: capacity}
}

// Enqueue добавляет операцию в хвост; при заполненной очереди возвращает ErrQueueCapacityExceeded.
func (q *OperationQueue) Enqueue(op domain.QueuedOperation) error {
	if len(q.ops) >= q.capacity {
		return domain.ErrQueueCapacityExceeded
	}
	q.ops = append(q.ops, op)
	return nil
}

// Peek возвращает головную операцию без удаления.
func (q *OperationQueue) Peek() (domain.QueuedOperation, bool) {
	if len(q.ops) == 0 {
		return domain.QueuedOperation{}, false
	}
	return q.ops[0], true
}

// Remove удаляет операцию по идентификатору.
func (q *OperationQueue) Remove(id string) bool {
	for i, op := range q.ops {
		if op.ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return true
		}
	}
	return false
}

// MarkFailed увеличивает счётчик попыток операции, оставляя её на месте (в голове очереди
// при сливе), и возвращает новое значение счётчика.
func (q *OperationQueue) MarkFailed(id string) int {
	for i := range q.ops {
		if q.ops[i].ID == id {
			q.ops[i].RetryCount++
			return q.ops[i].RetryCount
		}
	}
	return 0
}

// Len возвращает количество операций в очереди.
func (q *OperationQueue) Len() int {
	return len(q.ops)
}

// Snapshot возвращает копию содержимого очереди.
func (q *OperationQueue) Snapshot() []domain.QueuedOperation {
	out := make([]domain.QueuedOperation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Reset очищает очередь.
func (q *OperationQueue) Reset() {
	q.ops = nil
}
