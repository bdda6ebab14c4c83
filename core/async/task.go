package async

import (
	"runtime/debug"
	"sync/atomic"
)

// promise holds the one-shot handoff state shared by a task and its awaiter.
// flag resolves the race between the completer publishing a result and the
// awaiter installing a continuation: whichever side performs the second
// CompareAndSwap(false, true) is the one responsible for resuming execution.
type promise[T any] struct {
	flag     atomic.Bool
	cont     func()
	result   T
	panicked bool
	panicVal any
	done     chan struct{} // non-nil only for joinable (root) tasks
}

// TaskContext is passed to every task body. It carries the scheduler the task
// was spawned on and the last CPU a suspension of this task resumed on, and
// is the only way a task body can suspend itself.
type TaskContext struct {
	s   *Scheduler
	cpu int
}

func newTaskContext(s *Scheduler) *TaskContext {
	return &TaskContext{s: s, cpu: -1}
}

// CPU returns the index of the CPU queue that most recently resumed this
// task, or -1 if the task has never suspended.
func (tc *TaskContext) CPU() int {
	return tc.cpu
}

// Suspend yields the calling task until the scheduler resumes it on one of
// the CPUs allowed by affinity (0 meaning "any") at the given priority. The
// task body does not run inline on the worker that resumes it: Suspend parks
// the task's own goroutine on a private channel and hands the scheduler only
// a tiny closure that closes that channel, so the per-CPU worker loop never
// blocks on task code. No value is returned, matching the source primitive.
func (tc *TaskContext) Suspend(affinity uint64, priority int) {
	if tc.s == nil {
		return
	}
	resumeCh := make(chan struct{})
	cpu := tc.s.enqueue(affinity, priority, func() { close(resumeCh) })
	if cpu < 0 {
		// Scheduler is shutting down; nothing will ever close resumeCh.
		return
	}
	<-resumeCh
	tc.cpu = cpu
}

// task is the internal suspendable computation shared by JoinHandle and
// AwaitHandle. The two handle types wrap it to make Join and Await apply to
// distinct Go types, so calling the wrong operation on a handle is a compile
// error rather than a runtime deadlock.
type task[T any] struct {
	p     *promise[T]
	alloc FrameAllocator[T]
	ctx   *TaskContext
}

// JoinHandle is returned by Spawn. It is waited on with Join and must not be
// passed to Await.
type JoinHandle[T any] struct {
	t *task[T]
}

// AwaitHandle is returned by Async. It is consumed exactly once with Await
// and must not be passed to Join.
type AwaitHandle[T any] struct {
	t *task[T]
}

// Spawn starts fn eagerly on its own goroutine and returns a joinable root
// task. Exactly one Join call is expected per Spawn.
func Spawn[T any](s *Scheduler, fn func(*TaskContext) T) *JoinHandle[T] {
	return &JoinHandle[T]{t: spawn(s, fn, true)}
}

// Async starts fn eagerly on its own goroutine and returns an awaitable task.
// Exactly one Await call is expected per Async.
func Async[T any](s *Scheduler, fn func(*TaskContext) T) *AwaitHandle[T] {
	return &AwaitHandle[T]{t: spawn(s, fn, false)}
}

func spawn[T any](s *Scheduler, fn func(*TaskContext) T, joinable bool) *task[T] {
	alloc := defaultAllocator[T]()
	p := alloc.Get()
	if joinable {
		p.done = make(chan struct{})
	}
	t := &task[T]{p: p, alloc: alloc, ctx: newTaskContext(s)}
	go t.run(s, fn)
	return t
}

func (t *task[T]) run(s *Scheduler, fn func(*TaskContext) T) {
	var result T
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.p.panicked = true
				t.p.panicVal = r
				if s != nil {
					s.onTaskPanic(r, debug.Stack())
				}
				// Per the completion protocol, a panicking task leaves its
				// result slot at the zero value and completion proceeds
				// unchanged -- no error is synthesized.
			}
		}()
		result = fn(t.ctx)
	}()
	t.complete(result)
}

// complete publishes the result and resumes whichever side arrives second:
// if the awaiter already installed a continuation, flag is already true and
// this call invokes it directly (symmetric transfer, no scheduler hop); if the
// awaiter hasn't arrived yet, this call merely flips the flag and the awaiter
// resumes itself when it later calls Await.
func (t *task[T]) complete(v T) {
	t.p.result = v
	if t.p.done != nil {
		close(t.p.done)
		return
	}
	if !t.p.flag.CompareAndSwap(false, true) {
		cont := t.p.cont
		cont()
	}
}

// Join blocks the calling goroutine until the joinable task completes and
// returns its result.
func (h *JoinHandle[T]) Join() T {
	<-h.t.p.done
	return h.t.p.result
}

// Panicked reports whether the underlying task body terminated via panic.
// The result value is the type's zero value in that case.
func (h *JoinHandle[T]) Panicked() (any, bool) {
	return h.t.p.panicVal, h.t.p.panicked
}

// CPU returns the index of the CPU queue that most recently resumed this
// task after a suspension, or -1 if it never suspended.
func (h *JoinHandle[T]) CPU() int {
	return h.t.ctx.CPU()
}

// Panicked reports whether the underlying task body terminated via panic.
// The result value is the type's zero value in that case.
func (h *AwaitHandle[T]) Panicked() (any, bool) {
	return h.t.p.panicVal, h.t.p.panicked
}

// CPU returns the index of the CPU queue that most recently resumed this
// task after a suspension, or -1 if it never suspended.
func (h *AwaitHandle[T]) CPU() int {
	return h.t.ctx.CPU()
}

// Await suspends the calling task until the awaited task completes, then
// returns its result on the same goroutine. Await must be called at most
// once per AwaitHandle.
func Await[T any](h *AwaitHandle[T]) T {
	t := h.t
	resumeCh := make(chan struct{})
	t.p.cont = func() { close(resumeCh) }
	if !t.p.flag.CompareAndSwap(false, true) {
		// complete() got here first: the result is already published and it
		// saw our continuation too late to call it, so we resume inline.
		return t.p.result
	}
	<-resumeCh
	return t.p.result
}

func (t *task[T]) release() {
	if t.alloc != nil {
		t.alloc.Put(t.p)
	}
}
