// Package async implements the cooperative task/promise core: a suspendable
// computation type backed by a goroutine, a per-CPU work-queue scheduler with
// affinity routing and two priority tiers, and an event-wait bridge that lets
// a task suspend on an external signal and be rescheduled when it fires.
//
// Spawn returns a JoinHandle and Async returns an AwaitHandle -- distinct
// types, so Join and Await cannot be swapped onto the wrong kind of task.
// A task's TaskContext.Suspend yields the calling goroutine and asks the
// scheduler to wake it back up on an allowed CPU; the worker that wakes it
// never runs the task body itself, so it never blocks on it.
package async
