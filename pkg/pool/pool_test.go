package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolSubmit(t *testing.T) {
	p, err := New(10)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	var count int32
	var wg sync.WaitGroup
	n := 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		err := p.Submit(func() {
			atomic.AddInt32(&count, 1)
			wg.Done()
		})
		if err != nil {
			t.Errorf("submit failed: %v", err)
		}
	}

	wg.Wait()
	if count != int32(n) {
		t.Errorf("expected %d, got %d", n, count)
	}
}

func TestPoolPanicHandler(t *testing.T) {
	var panicked int32
	p, _ := New(1, WithPanicHandler(func(v interface{}) {
		atomic.StoreInt32(&panicked, 1)
	}))
	defer p.Release()

	_ = p.Submit(func() {
		panic("oops")
	})

	// The handler runs in the worker's recover, after the task's own defers,
	// so poll rather than assert immediately.
	for i := 0; i < 100; i++ {
		if atomic.LoadInt32(&panicked) == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("panic handler not called")
}

func TestPoolNonBlocking(t *testing.T) {
	p, _ := New(1, WithNonBlocking(true), WithQueueSize(1))
	defer p.Release()

	start := make(chan struct{})
	done := make(chan struct{})

	_ = p.Submit(func() {
		close(start)
		<-done
	})
	<-start

	// Worker is busy; this one fills the single queue slot.
	if err := p.Submit(func() {}); err != nil {
		t.Errorf("expected success for queued task, got %v", err)
	}

	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolFull) {
		t.Errorf("expected ErrPoolFull, got %v", err)
	}

	close(done)
}

func TestPoolRelease(t *testing.T) {
	p, _ := New(5)

	var count int32
	for i := 0; i < 50; i++ {
		_ = p.Submit(func() {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&count, 1)
		})
	}

	p.Release()

	if count != 50 {
		t.Errorf("Release did not wait for all tasks, got %d", count)
	}

	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed after Release, got %v", err)
	}
}
