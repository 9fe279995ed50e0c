package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T, queue int) *Loop {
	t.Helper()
	l := New(queue)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := startLoop(t, 16)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatal("post failed on running loop")
		}
	}

	var snapshot []int
	l.Do(func() { snapshot = append([]int(nil), got...) })

	if len(snapshot) != 10 {
		t.Fatalf("expected 10 tasks run, got %d", len(snapshot))
	}
	for i, v := range snapshot {
		if v != i {
			t.Errorf("task %d ran out of order: %v", i, snapshot)
			break
		}
	}
}

func TestLoop_ConcurrentPostersAreSerialized(t *testing.T) {
	l := startLoop(t, 4)

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var got int
	l.Do(func() { got = counter })
	if got != 800 {
		t.Errorf("expected 800 increments, got %d", got)
	}
}

func TestLoop_TryPostDropsWhenFull(t *testing.T) {
	l := New(1) // not running, so the queue never drains

	if !l.TryPost(func() {}) {
		t.Fatal("expected first TryPost to fit")
	}
	if l.TryPost(func() {}) {
		t.Error("expected TryPost to fail on a full queue")
	}
}

func TestLoop_ClosedLoopRejectsWork(t *testing.T) {
	l := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}

	if l.Post(func() {}) {
		t.Error("expected Post to fail after stop")
	}
	if l.TryPost(func() {}) {
		t.Error("expected TryPost to fail after stop")
	}
	if l.Do(func() {}) {
		t.Error("expected Do to fail after stop")
	}
}

func TestLoop_CloseIsIdempotent(t *testing.T) {
	l := New(1)
	l.Close()
	l.Close()

	select {
	case <-l.Done():
	default:
		t.Error("expected Done to be closed")
	}
}
