package quiver

import (
	"testing"
	"time"

	"github.com/quiver-http/quiver/cache"
)

func neverQuit() bool { return false }

func newTestRequest(seq uint64, p Priority) *Request {
	r := NewRequest("GET", "http://example.com/",
		func(nr *NetworkResponse) (string, *cache.Entry, error) {
			return string(nr.Data), nil, nil
		}, nil, nil)
	r.seq = seq
	r.SetPriority(p)
	return r
}

func TestPriorityQueueOrdersByPriorityThenSequence(t *testing.T) {
	q := newPriorityQueue()

	a := newTestRequest(2, PriorityHigh)
	b := newTestRequest(1, PriorityNormal)
	c := newTestRequest(3, PriorityNormal)

	q.put(b)
	q.put(c)
	q.put(a)

	for i, want := range []*Request{a, b, c} {
		got, ok := q.take(neverQuit)
		if !ok || got != want {
			t.Fatalf("take %d returned seq %d, want seq %d", i, got.seq, want.seq)
		}
	}
}

func TestPriorityQueueImmediatePreemptsBacklog(t *testing.T) {
	q := newPriorityQueue()
	for i := 0; i < 10; i++ {
		q.put(newTestRequest(uint64(i+1), PriorityNormal))
	}
	urgent := newTestRequest(11, PriorityImmediate)
	q.put(urgent)

	got, ok := q.take(neverQuit)
	if !ok || got != urgent {
		t.Fatalf("take returned seq %d, want the immediate request", got.seq)
	}
}

func TestPriorityQueueTakeUnblocksOnQuit(t *testing.T) {
	q := newPriorityQueue()
	quit := false
	done := make(chan bool, 1)

	go func() {
		_, ok := q.take(func() bool { return quit })
		done <- ok
	}()

	// let the taker block, then signal quit
	time.Sleep(10 * time.Millisecond)
	quit = true
	q.wake()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("take returned a request after quit")
		}
	case <-time.After(time.Second):
		t.Fatal("take did not unblock on quit")
	}
}

func TestPriorityQueueFIFOWithinPriority(t *testing.T) {
	q := newPriorityQueue()
	for i := 0; i < 5; i++ {
		q.put(newTestRequest(uint64(i+1), PriorityNormal))
	}
	for i := 0; i < 5; i++ {
		got, _ := q.take(neverQuit)
		if got.seq != uint64(i+1) {
			t.Fatalf("take %d returned seq %d", i, got.seq)
		}
	}
	if q.len() != 0 {
		t.Fatalf("queue not drained, %d left", q.len())
	}
}
