package transport

import (
	"context"
	"sync"
	"time"
)

// OverflowPolicy governs what BoundedQueue does when Push is called against
// a full queue. No policy ever allows unbounded growth.
type OverflowPolicy int

const (
	// DropNewest rejects the incoming item, keeping the queue as-is.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the head of the queue to make room for the
	// incoming item.
	DropOldest
	// Block waits up to the queue's configured timeout for room to free
	// up, then behaves like DropNewest.
	Block
)

const (
	// DefaultCapacity is used by any endpoint queue that isn't given an
	// explicit capacity.
	DefaultCapacity = 1024
	// DefaultBlockTimeout bounds how long a Block-policy Push will wait.
	DefaultBlockTimeout = 250 * time.Millisecond
)

// QueueConfig configures one bounded queue.
type QueueConfig struct {
	Capacity     int
	Policy       OverflowPolicy
	BlockTimeout time.Duration
}

// DefaultQueueConfig returns the spec defaults: capacity 1024, DropNewest.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity:     DefaultCapacity,
		Policy:       DropNewest,
		BlockTimeout: DefaultBlockTimeout,
	}
}

func (c QueueConfig) normalized() QueueConfig {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = DefaultBlockTimeout
	}
	return c
}

// BoundedQueue is a small, mutex-guarded slice-backed FIFO with a configurable
// overflow policy. It backs every inbound/outbound endpoint queue in both
// transports; standard concurrent deques are deliberately avoided in favor
// of this explicit, policy-driven buffer since DropOldest requires evicting
// from the head under the producer's own call, which a plain buffered
// channel cannot express.
type BoundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []interface{}
	config QueueConfig
	closed bool
}

// NewBoundedQueue creates a queue with the given configuration.
func NewBoundedQueue(config QueueConfig) *BoundedQueue {
	q := &BoundedQueue{config: config.normalized()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push attempts to enqueue item, honoring the configured overflow policy.
// Returns true iff the item ends up in the queue.
func (q *BoundedQueue) Push(item interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if len(q.items) < q.config.Capacity {
		q.items = append(q.items, item)
		q.cond.Signal()
		return true
	}

	switch q.config.Policy {
	case DropOldest:
		q.items = append(q.items[1:], item)
		q.cond.Signal()
		return true
	case Block:
		return q.pushBlocking(item)
	default: // DropNewest
		return false
	}
}

// pushBlocking waits up to config.BlockTimeout for room to free up. Must be
// called with q.mu held; it releases the lock only inside the wait.
func (q *BoundedQueue) pushBlocking(item interface{}) bool {
	deadline := time.Now().Add(q.config.BlockTimeout)
	for len(q.items) >= q.config.Capacity && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		waitCh := make(chan struct{})
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
			close(waitCh)
		})
		q.cond.Wait()
		timer.Stop()
		select {
		case <-waitCh:
		default:
		}
	}
	if q.closed {
		return false
	}
	if len(q.items) >= q.config.Capacity {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available, the queue is closed, or ctx is
// done. Returns (item, true) on success.
func (q *BoundedQueue) Pop(ctx context.Context) (interface{}, bool) {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
		close(done)
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		if ctx.Err() != nil {
			return nil, false
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	// Wake any Block-policy Push waiting for room.
	q.cond.Broadcast()
	return item, true
}

// TryPop returns immediately: (item, true) if one was queued, else
// (nil, false). Used by drain loops that manage their own "is anything
// left" bookkeeping.
func (q *BoundedQueue) TryPop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	// Wake any Block-policy Push waiting for room.
	q.cond.Broadcast()
	return item, true
}

// Len reports the number of queued items.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and discards any remaining items, waking up
// any blocked Push/Pop callers.
func (q *BoundedQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
