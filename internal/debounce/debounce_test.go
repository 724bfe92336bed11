package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleLatestWins(t *testing.T) {
	c := New()
	defer c.Stop()

	var mu sync.Mutex
	var got []int

	c.Schedule("edit", 60*time.Millisecond, func() {
		mu.Lock()
		got = append(got, 1)
		mu.Unlock()
	})
	time.Sleep(20 * time.Millisecond)
	c.Schedule("edit", 60*time.Millisecond, func() {
		mu.Lock()
		got = append(got, 2)
		mu.Unlock()
	})

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected exactly one fire with the second op, got %v", got)
	}
}

func TestIndependentKeys(t *testing.T) {
	c := New()
	defer c.Stop()

	var n atomic.Int32
	c.Schedule("a", 20*time.Millisecond, func() { n.Add(1) })
	c.Schedule("b", 20*time.Millisecond, func() { n.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if v := n.Load(); v != 2 {
		t.Fatalf("expected both keys to fire, got %d", v)
	}
}

func TestCancel(t *testing.T) {
	c := New()
	defer c.Stop()

	var n atomic.Int32
	c.Schedule("x", 30*time.Millisecond, func() { n.Add(1) })
	if !c.Cancel("x") {
		t.Fatal("Cancel should report a pending op")
	}
	if c.Cancel("x") {
		t.Fatal("second Cancel should report nothing pending")
	}

	time.Sleep(80 * time.Millisecond)
	if v := n.Load(); v != 0 {
		t.Fatalf("cancelled op fired %d times", v)
	}
}

func TestFlushRunsImmediately(t *testing.T) {
	c := New()
	defer c.Stop()

	var n atomic.Int32
	c.Schedule("x", time.Hour, func() { n.Add(1) })
	if !c.Flush("x") {
		t.Fatal("Flush should report a pending op")
	}
	if v := n.Load(); v != 1 {
		t.Fatalf("expected flush to run the op, got %d runs", v)
	}
	if c.Pending("x") {
		t.Fatal("key should be clear after Flush")
	}
}

func TestStopDropsPendingAndRejectsNew(t *testing.T) {
	c := New()

	var n atomic.Int32
	c.Schedule("x", 20*time.Millisecond, func() { n.Add(1) })
	c.Stop()
	c.Schedule("y", 1*time.Millisecond, func() { n.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if v := n.Load(); v != 0 {
		t.Fatalf("ops ran after Stop: %d", v)
	}
}
