package threadpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsConcurrentlyUpToSize(t *testing.T) {
	p := New(2)
	defer p.Shutdown(true)

	var running int32
	var maxRunning int32
	block := make(chan struct{})

	for i := 0; i < 2; i++ {
		p.RunInThread(func() {
			n := atomic.AddInt32(&running, 1)
			for {
				cur := atomic.LoadInt32(&maxRunning)
				if n <= cur || atomic.CompareAndSwapInt32(&maxRunning, cur, n) {
					break
				}
			}
			<-block
			atomic.AddInt32(&running, -1)
		})
	}

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&maxRunning) != 2 {
		t.Fatalf("expected 2 concurrent tasks, got %d", maxRunning)
	}
	close(block)
}

func TestPool_BlockForAvailableThreads(t *testing.T) {
	p := New(1)
	defer p.Shutdown(true)

	block := make(chan struct{})
	p.RunInThread(func() { <-block })
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if n := p.BlockForAvailableThreads(ctx); n != 0 {
		t.Fatalf("expected timeout with 0 available, got %d", n)
	}

	close(block)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if n := p.BlockForAvailableThreads(ctx2); n < 1 {
		t.Fatalf("expected at least 1 available after task finished, got %d", n)
	}
}
