package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is an unbounded multi-producer single-consumer queue. Producers append to
// a linked list with atomic operations, a single internal goroutine hands the items to
// the Recv channel in list order.
//
// Items pushed by one producer are received in push order. Items of different producers
// are ordered by which append completed first.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]] // sentinel, owned by the consumer
	tail   atomic.Pointer[node[T]]
	out    chan *T
	closed atomic.Bool

	// mu and cond park the consumer while the list is empty. Producers signal while
	// holding mu, so a signal can not fall between the consumer's empty check and its Wait.
	mu   sync.Mutex
	cond *sync.Cond
	done sync.WaitGroup
}

// NewLockFreeMPSC creates a queue and starts its consumer goroutine
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.done.Add(1)
	go q.consume()

	return q
}

// Push appends an item. It returns false if the item is nil or the queue is closed.
// Push is safe for concurrent use.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		// Case tail is current: try to link the new node
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have advanced the tail, that is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.wake()
				return true
			}
		} else {
			// Case tail is lagging: help the producer that linked next
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin a little at low contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Recv returns the channel the items are delivered on. It is closed after Close once
// all items pushed before were delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close rejects further pushes. Items already queued are still delivered.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// Wait blocks until the consumer goroutine delivered every item and closed Recv.
// Recv must be drained concurrently, otherwise Wait does not return.
func (q *LockFreeMPSC[T]) Wait() {
	q.done.Wait()
}

// IsClosed reports whether Close was called
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len counts the queued items. It walks the list and is meant for diagnostics only.
func (q *LockFreeMPSC[T]) Len() int {
	count := 0
	for current := q.head.Load().next.Load(); current != nil; current = current.next.Load() {
		count++
	}
	return count
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (q *LockFreeMPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume moves items from the list to the out channel until the queue is closed and empty
func (q *LockFreeMPSC[T]) consume() {
	defer q.done.Done()
	defer close(q.out)

	for {
		if q.deliver() {
			continue
		}

		q.mu.Lock()
		for q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		empty := q.head.Load().next.Load() == nil
		q.mu.Unlock()

		if empty && q.closed.Load() {
			return
		}
	}
}

// deliver sends all currently linked items and reports whether there were any
func (q *LockFreeMPSC[T]) deliver() bool {
	delivered := false
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			return delivered
		}

		value := next.value
		q.head.Store(next) // next becomes the new sentinel, head can be collected
		q.out <- value
		next.value = nil
		delivered = true
	}
}
