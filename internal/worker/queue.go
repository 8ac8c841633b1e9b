package worker

import "container/heap"

// item is one queued task. Ordering is (priority asc, seq asc); seq is a
// monotonic counter so equal priorities stay FIFO.
type item struct {
	path     string
	priority int
	seq      uint64
}

// queue is a min-heap of items.
type queue []*item

var _ heap.Interface = (*queue)(nil)

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*item)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}
