package transport

import (
	"context"
	"testing"
	"time"
)

func TestBoundedQueue_DropNewestRejectsWhenFull(t *testing.T) {
	q := NewBoundedQueue(QueueConfig{Capacity: 2, Policy: DropNewest})
	if !q.Push(1) || !q.Push(2) {
		t.Fatal("expected first two pushes to succeed")
	}
	if q.Push(3) {
		t.Fatal("expected third push to be rejected under DropNewest")
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
}

func TestBoundedQueue_DropOldestEvictsHead(t *testing.T) {
	q := NewBoundedQueue(QueueConfig{Capacity: 2, Policy: DropOldest})
	q.Push(1)
	q.Push(2)
	if !q.Push(3) {
		t.Fatal("expected push to succeed under DropOldest")
	}
	first, _ := q.TryPop()
	second, _ := q.TryPop()
	if first != 2 || second != 3 {
		t.Fatalf("expected [2,3], got [%v,%v]", first, second)
	}
}

func TestBoundedQueue_BlockTimesOutThenFails(t *testing.T) {
	q := NewBoundedQueue(QueueConfig{Capacity: 1, Policy: Block, BlockTimeout: 30 * time.Millisecond})
	q.Push(1)

	start := time.Now()
	ok := q.Push(2)
	elapsed := time.Since(start)

	if ok {
		t.Fatal("expected push to fail after timeout")
	}
	if elapsed < 20*time.Millisecond {
		t.Fatalf("expected push to wait close to the timeout, took %s", elapsed)
	}
}

func TestBoundedQueue_BlockUnblocksOnRoom(t *testing.T) {
	q := NewBoundedQueue(QueueConfig{Capacity: 1, Policy: Block, BlockTimeout: time.Second})
	q.Push(1)

	done := make(chan bool, 1)
	go func() {
		done <- q.Push(2)
	}()

	time.Sleep(10 * time.Millisecond)
	q.TryPop()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected blocked push to succeed once room freed")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked push never returned")
	}
}

func TestBoundedQueue_PopRespectsContextCancellation(t *testing.T) {
	q := NewBoundedQueue(DefaultQueueConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	if ok {
		t.Fatal("expected Pop to fail once context is done on an empty queue")
	}
}

func TestBoundedQueue_NeverGrowsUnbounded(t *testing.T) {
	for _, policy := range []OverflowPolicy{DropNewest, DropOldest} {
		q := NewBoundedQueue(QueueConfig{Capacity: 4, Policy: policy})
		for i := 0; i < 1000; i++ {
			q.Push(i)
		}
		if q.Len() > 4 {
			t.Fatalf("policy %v let queue grow to %d", policy, q.Len())
		}
	}
}
