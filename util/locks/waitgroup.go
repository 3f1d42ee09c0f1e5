package locks

import (
	"sync"
	"sync/atomic"
)

// WaitGroup is a sync.WaitGroup with a broadcast-on-zero wait condition
// instead of a channel close, exported from kaspad's package-private
// waitGroup so core's progress ticker (and anything else spawned with
// panics.GoroutineWrapperFunc) can be waited on during a graceful shutdown.
type WaitGroup struct {
	counter  int64
	initOnce sync.Once
	waitCond *sync.Cond
}

func (wg *WaitGroup) cond() *sync.Cond {
	wg.initOnce.Do(func() {
		wg.waitCond = sync.NewCond(&sync.Mutex{})
	})
	return wg.waitCond
}

// Add increments the outstanding-goroutine count.
func (wg *WaitGroup) Add() {
	atomic.AddInt64(&wg.counter, 1)
}

// Done decrements the outstanding-goroutine count, waking any Wait callers
// once it reaches zero.
func (wg *WaitGroup) Done() {
	counter := atomic.AddInt64(&wg.counter, -1)
	if counter < 0 {
		panic("negative values for wg.counter are not allowed. This was likely caused by calling Done() before Add()")
	}
	if atomic.LoadInt64(&wg.counter) == 0 {
		wg.cond().Broadcast()
	}
}

// Wait blocks until every Add has a matching Done.
func (wg *WaitGroup) Wait() {
	cond := wg.cond()
	cond.L.Lock()
	defer cond.L.Unlock()
	for atomic.LoadInt64(&wg.counter) != 0 {
		cond.Wait()
	}
}
