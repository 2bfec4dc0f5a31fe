package queue

import (
	"sync"
	"testing"
)

// testItem is a simple struct for testing the generic queue
type testItem struct {
	ID   int
	Name string
}

func ids(items []testItem) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueue_New(t *testing.T) {
	q := New[testItem]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_Push(t *testing.T) {
	q := New[testItem]()

	q.Push(testItem{ID: 1, Name: "first"})
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}

	q.Push(testItem{ID: 2}, testItem{ID: 3})
	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}
}

func TestQueue_DrainAll(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2}, testItem{ID: 3})

	got := q.Drain(0)

	if !equalInts(ids(got), []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", ids(got))
	}
	if !q.Empty() {
		t.Error("expected empty queue after drain")
	}
}

func TestQueue_DrainBounded(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2}, testItem{ID: 3})

	got := q.Drain(2)
	if !equalInts(ids(got), []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", ids(got))
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", q.Len())
	}

	got = q.Drain(10)
	if !equalInts(ids(got), []int{3}) {
		t.Errorf("expected [3], got %v", ids(got))
	}
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := New[testItem]()

	if got := q.Drain(5); len(got) != 0 {
		t.Errorf("expected nothing, got %v", got)
	}
}

func TestQueue_DrainedSliceIsDetached(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2})

	got := q.Drain(1)
	q.Push(testItem{ID: 9})
	got[0].ID = 100

	rest := q.Drain(0)
	if !equalInts(ids(rest), []int{2, 9}) {
		t.Errorf("expected [2 9], got %v", ids(rest))
	}
}

func TestQueue_RequeueKeepsOrder(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2})

	batch := q.Drain(0)
	q.Push(testItem{ID: 3})
	q.Requeue(batch...)

	got := q.Drain(0)
	if !equalInts(ids(got), []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", ids(got))
	}
}

func TestQueue_RequeueNothing(t *testing.T) {
	q := New[testItem]()
	q.Requeue()
	if !q.Empty() {
		t.Error("expected empty queue")
	}
}

func TestQueue_ConcurrentAccess(t *testing.T) {
	q := New[testItem]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.Push(testItem{ID: id})
		}(i)
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Errorf("expected length 100, got %d", q.Len())
	}

	var drained int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(q.Drain(10))
			q.mu.Lock()
			drained += n
			q.mu.Unlock()
		}()
	}
	wg.Wait()

	if drained != 100 {
		t.Errorf("expected 100 drained, got %d", drained)
	}
}
