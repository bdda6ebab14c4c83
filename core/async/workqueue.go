package async

import (
	"runtime"
	"sync"
)

const (
	// PriorityDefault is the normal-priority sub-queue index.
	PriorityDefault = 0
	// PriorityHigh is the high-priority sub-queue index, drained first.
	PriorityHigh = 1

	numPriorities = 2
)

// workQueue is one per CPU: two priority sub-queues, a condition variable
// signalled once per enqueued item to wake the pinned worker, and an active
// flag observed by the worker loop on shutdown.
type workQueue struct {
	cpu    int
	subs   [numPriorities]*concurrentQueue[func()]
	mu     sync.Mutex
	cond   *sync.Cond
	active bool
	done   chan struct{}
}

func newWorkQueue(cpu int) *workQueue {
	wq := &workQueue{cpu: cpu, active: true, done: make(chan struct{})}
	for i := range wq.subs {
		wq.subs[i] = newConcurrentQueue[func()]()
	}
	wq.cond = sync.NewCond(&wq.mu)
	return wq
}

func (wq *workQueue) push(priority int, resume func()) {
	wq.subs[priority].Push(resume)
	wq.mu.Lock()
	wq.cond.Signal()
	wq.mu.Unlock()
}

func (wq *workQueue) approxLen() int {
	return wq.subs[PriorityDefault].ApproxLen() + wq.subs[PriorityHigh].ApproxLen()
}

// pop blocks until an item is available or the queue is shut down; high
// priority is always drained before default.
func (wq *workQueue) pop() (func(), bool) {
	for {
		if r, ok := wq.subs[PriorityHigh].Pop(); ok {
			return r, true
		}
		if r, ok := wq.subs[PriorityDefault].Pop(); ok {
			return r, true
		}
		wq.mu.Lock()
		if !wq.active {
			wq.mu.Unlock()
			return nil, false
		}
		if wq.approxLen() > 0 {
			// An item was pushed after the checks above; its Signal may have
			// fired before this goroutine started waiting.
			wq.mu.Unlock()
			continue
		}
		wq.cond.Wait()
		wq.mu.Unlock()
	}
}

func (wq *workQueue) shutdown() {
	wq.mu.Lock()
	wq.active = false
	wq.cond.Broadcast()
	wq.mu.Unlock()
}

// run is the worker loop: pin to wq.cpu, then drain resumables until shutdown.
func (wq *workQueue) run(s *Scheduler) {
	defer close(wq.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	pinCurrentThread(wq.cpu)

	for {
		resume, ok := wq.pop()
		if !ok {
			return
		}
		s.runResumption(wq.cpu, resume)
	}
}
