package dispatch

import (
	"fmt"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](10)

	for i := 0; i < 5; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("Enqueue(%d) returned false", i)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		got, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("TryDequeue() empty at %d", i)
		}
		if got != i {
			t.Errorf("TryDequeue() = %d, want %d", got, i)
		}
	}

	if _, ok := q.TryDequeue(); ok {
		t.Error("TryDequeue() on empty queue returned ok")
	}
}

func TestQueueGrowsBeforeFull(t *testing.T) {
	q := NewQueue[int](10)

	// Threshold is 70% of capacity, so the 7th item triggers a resize.
	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}

	if q.Cap() <= 10 {
		t.Errorf("Cap() = %d, want growth beyond 10", q.Cap())
	}
	st := q.Stats()
	if st.Grows == 0 {
		t.Error("Grows = 0, want at least one resize")
	}

	// Order survives the resize.
	for i := 0; i < 10; i++ {
		got, ok := q.TryDequeue()
		if !ok || got != i {
			t.Fatalf("TryDequeue() = %d,%v, want %d,true", got, ok, i)
		}
	}
}

func TestQueueWraparound(t *testing.T) {
	q := NewQueue[string](8)

	// Advance head and tail so the ring wraps.
	for i := 0; i < 4; i++ {
		q.Enqueue(fmt.Sprintf("warm-%d", i))
	}
	for i := 0; i < 4; i++ {
		q.TryDequeue()
	}

	for i := 0; i < 5; i++ {
		q.Enqueue(fmt.Sprintf("item-%d", i))
	}

	got := q.Drain(0)
	if len(got) != 5 {
		t.Fatalf("Drain(0) returned %d items, want 5", len(got))
	}
	for i, s := range got {
		want := fmt.Sprintf("item-%d", i)
		if s != want {
			t.Errorf("Drain[%d] = %q, want %q", i, s, want)
		}
	}
}

func TestQueueDrainMax(t *testing.T) {
	q := NewQueue[int](20)
	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}

	first := q.Drain(4)
	if len(first) != 4 {
		t.Fatalf("Drain(4) returned %d items", len(first))
	}
	for i, v := range first {
		if v != i {
			t.Errorf("Drain(4)[%d] = %d, want %d", i, v, i)
		}
	}

	rest := q.Drain(0)
	if len(rest) != 6 {
		t.Fatalf("Drain(0) returned %d items, want 6", len(rest))
	}
	if rest[0] != 4 {
		t.Errorf("Drain(0)[0] = %d, want 4", rest[0])
	}

	if q.Drain(0) != nil {
		t.Error("Drain on empty queue returned items")
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue[int](4)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Close()

	if q.Enqueue(3) {
		t.Error("Enqueue after Close returned true")
	}

	// Queued items stay drainable after close.
	got := q.Drain(0)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Drain after Close = %v, want [1 2]", got)
	}
}

func TestQueueTinyInitialCapacity(t *testing.T) {
	q := NewQueue[int](0)
	for i := 0; i < 100; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("Enqueue(%d) returned false", i)
		}
	}
	got := q.Drain(0)
	if len(got) != 100 {
		t.Fatalf("Drain returned %d items, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order broken at %d: got %d", i, v)
		}
	}
}

func TestQueueStats(t *testing.T) {
	q := NewQueue[int](10)
	for i := 0; i < 6; i++ {
		q.Enqueue(i)
	}
	q.TryDequeue()
	q.TryDequeue()

	st := q.Stats()
	if st.Enqueued != 6 {
		t.Errorf("Enqueued = %d, want 6", st.Enqueued)
	}
	if st.Drained != 2 {
		t.Errorf("Drained = %d, want 2", st.Drained)
	}
	if st.Depth != 4 {
		t.Errorf("Depth = %d, want 4", st.Depth)
	}
	if st.HighWater != 6 {
		t.Errorf("HighWater = %d, want 6", st.HighWater)
	}
}
