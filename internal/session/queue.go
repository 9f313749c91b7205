package session

import "container/list"

const DefaultQueueLimit = 1000

// Queue is a bounded FIFO of pending deliveries. Pushing onto a full queue
// drops the oldest element.
type Queue struct {
	items *list.List
	limit int
}

func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Queue{items: list.New(), limit: limit}
}

// Push appends d and reports whether the oldest element was dropped.
func (q *Queue) Push(d Delivery) (dropped bool) {
	if q.items.Len() >= q.limit {
		q.items.Remove(q.items.Front())
		dropped = true
	}
	q.items.PushBack(d)
	return dropped
}

// Drain removes and returns every element in enqueue order.
func (q *Queue) Drain() []Delivery {
	result := make([]Delivery, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		result = append(result, e.Value.(Delivery))
	}
	q.items.Init()
	return result
}

// PushFront puts undelivered elements back ahead of anything queued since.
func (q *Queue) PushFront(ds []Delivery) {
	for i := len(ds) - 1; i >= 0; i-- {
		if q.items.Len() >= q.limit {
			return
		}
		q.items.PushFront(ds[i])
	}
}

func (q *Queue) Len() int {
	return q.items.Len()
}

func (q *Queue) Limit() int {
	return q.limit
}
