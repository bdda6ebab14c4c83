// Package taskrunner is the root of a cooperative, suspendable-computation
// runtime for Go: a fixed array of per-CPU work queues, each with a
// high/default priority split, feeding a scheduler that places resumable
// work by affinity mask rather than pulling from one shared queue.
//
// This package holds only documentation. The actual API lives in the
// core/async subpackage; the core package holds shared configuration
// (core.TaskSchedulerConfig) and the observability interfaces it's built
// against (core.Logger, core.Metrics, core.PanicHandler,
// core.RejectedTaskHandler), and observability/prometheus holds a Prometheus
// adapter for them.
//
// # Quick Start
//
//	s := async.NewScheduler("workers", 4, nil)
//	defer s.Shutdown()
//
//	root := async.Spawn(s, func(tc *async.TaskContext) int {
//		tc.Suspend(0, async.PriorityDefault) // yield, resume on any CPU
//		return 42
//	})
//	fmt.Println(root.Join())
//
// # Key Concepts
//
// Scheduler: owns C = min(workers, 64) per-CPU work queues and the event
// bridge. Schedule(affinity, priority, resume) places resume on the queue
// chosen by the affinity mask (0 meaning any CPU) and priority
// (PriorityDefault or PriorityHigh, the latter always drained first).
//
// TaskContext: passed to every task body. Suspend(affinity, priority) parks
// the task's own goroutine and hands the scheduler a small closure that wakes
// it back up -- the task body never runs inline on a worker's pinned loop, so
// a worker blocked resuming one task can never deadlock on another.
//
// JoinHandle / AwaitHandle: Spawn returns a JoinHandle, consumed with Join;
// Async returns an AwaitHandle, consumed exactly once with Await. They are
// distinct Go types, so passing a JoinHandle to Await or an AwaitHandle's
// underlying task to Join is a compile error rather than a runtime deadlock.
//
// Event: a manual-reset signal (it stays signaled until Reset) a task can
// suspend on with
// Scheduler.AwaitEvent, resuming on a queue chosen by affinity/priority
// instead of leaving an OS thread parked on the signal.
//
// # Thread Safety
//
// Every exported type in core/async is safe for concurrent use by multiple
// goroutines except where documented otherwise (a JoinHandle's Join and an
// AwaitHandle's Await are each meant to be called exactly once).
//
// # Example
//
//	import (
//		"fmt"
//
//		"github.com/riftpool/go-task-runner/core/async"
//	)
//
//	func main() {
//		s := async.NewScheduler("workers", 4, nil)
//		defer s.Shutdown()
//
//		double := async.Async(s, func(tc *async.TaskContext) int {
//			tc.Suspend(0, async.PriorityDefault)
//			return 21 * 2
//		})
//		fmt.Println(async.Await(double))
//	}
//
// For more details, see https://github.com/riftpool/go-task-runner
package taskrunner
