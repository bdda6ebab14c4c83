package async

import (
	"testing"
	"time"

	"github.com/riftpool/go-task-runner/core"
)

// TestCanonicalAffinity_ZeroMeansAll verifies a zero mask is normalized to
// "every CPU allowed" per the resolved affinity-polarity Open Question.
func TestCanonicalAffinity_ZeroMeansAll(t *testing.T) {
	got := canonicalAffinity(0, 4)
	want := uint64(0b1111)
	if got != want {
		t.Fatalf("canonicalAffinity(0, 4) = %b, want %b", got, want)
	}
}

// TestCanonicalAffinity_MasksOutOfRangeBits verifies bits at or above c are
// cleared.
func TestCanonicalAffinity_MasksOutOfRangeBits(t *testing.T) {
	got := canonicalAffinity(0b11111111, 4)
	want := uint64(0b1111)
	if got != want {
		t.Fatalf("canonicalAffinity(0xFF, 4) = %b, want %b", got, want)
	}
}

// TestCanonicalAffinity_PreservesAllowedBits verifies a non-zero mask within
// range passes through unchanged.
func TestCanonicalAffinity_PreservesAllowedBits(t *testing.T) {
	got := canonicalAffinity(0b0101, 4)
	if got != 0b0101 {
		t.Fatalf("canonicalAffinity(0b0101, 4) = %b, want %b", got, 0b0101)
	}
}

// TestScheduler_PickCPU_RestrictsToMask verifies Schedule only ever places
// work on a CPU allowed by the affinity mask, even under repeated calls that
// force the Kronecker fallback once every allowed queue is non-empty.
func TestScheduler_PickCPU_RestrictsToMask(t *testing.T) {
	s := NewScheduler("affinity-mask", 4, nil)
	defer s.Shutdown()

	const allowed = 0b0101 // CPUs 0 and 2 only
	const n = 20
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		s.Schedule(allowed, PriorityDefault, func() { done <- struct{}{} })
	}
	for i := 0; i < n; i++ {
		<-done
	}
	time.Sleep(20 * time.Millisecond)

	records := s.RecentResumptions(n)
	if len(records) != n {
		t.Fatalf("RecentResumptions(%d) = %d records, want %d", n, len(records), n)
	}
	for _, r := range records {
		if r.CPU != 0 && r.CPU != 2 {
			t.Fatalf("resumption ran on CPU %d, want 0 or 2 (mask=%b)", r.CPU, allowed)
		}
	}
}

// TestScheduler_ScheduleExecutesResume verifies a scheduled resume actually
// runs on one of the scheduler's workers.
func TestScheduler_ScheduleExecutesResume(t *testing.T) {
	s := NewScheduler("schedule-exec", 2, nil)
	defer s.Shutdown()

	done := make(chan struct{})
	s.Schedule(0, PriorityDefault, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled resume never ran")
	}
}

// TestScheduler_AwaitEvent verifies a task suspended on AwaitEvent resumes
// once the event is signaled.
func TestScheduler_AwaitEvent(t *testing.T) {
	s := NewScheduler("await-event", 2, nil)
	defer s.Shutdown()

	ev := NewEvent()
	resumed := make(chan struct{})
	go func() {
		s.AwaitEvent(ev, 0, PriorityDefault)
		close(resumed)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-resumed:
		t.Fatal("AwaitEvent returned before Signal")
	default:
	}

	ev.Signal()
	select {
	case <-resumed:
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitEvent did not resume after Signal")
	}
}

// TestScheduler_IDAndIsRunning verifies the two surviving accessors track
// construction and Shutdown.
func TestScheduler_IDAndIsRunning(t *testing.T) {
	s := NewScheduler("id-running", 2, nil)

	if s.ID() != "id-running" {
		t.Fatalf("ID() = %q, want id-running", s.ID())
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false before Shutdown")
	}
	s.Shutdown()
	if s.IsRunning() {
		t.Fatal("IsRunning() = true after Shutdown")
	}
}

// TestScheduler_RejectsAfterShutdown verifies Schedule after Shutdown routes
// through RejectedTaskHandler instead of silently dropping the work or
// leaving a caller parked forever.
func TestScheduler_RejectsAfterShutdown(t *testing.T) {
	rejections := make(chan string, 1)
	cfg := core.DefaultTaskSchedulerConfig()
	cfg.RejectedTaskHandler = rejectedTaskHandlerFunc(func(runnerName, reason string) {
		rejections <- reason
	})

	s := NewScheduler("rejects-after-shutdown", 2, cfg)
	s.Shutdown()

	ran := false
	cpu := s.enqueue(0, PriorityDefault, func() { ran = true })
	if cpu >= 0 {
		t.Fatalf("enqueue() after Shutdown = %d, want negative", cpu)
	}
	if ran {
		t.Fatal("resume ran after Shutdown")
	}

	select {
	case reason := <-rejections:
		if reason == "" {
			t.Fatal("HandleRejectedTask called with empty reason")
		}
	case <-time.After(time.Second):
		t.Fatal("RejectedTaskHandler was never called")
	}
}

// TestScheduler_RecordsTaskDurationMetric verifies a successful resumption
// reports its duration through core.Metrics, keyed by the scheduler's id.
func TestScheduler_RecordsTaskDurationMetric(t *testing.T) {
	durations := make(chan string, 1)
	cfg := core.DefaultTaskSchedulerConfig()
	cfg.Metrics = recordTaskDurationFunc(func(runnerName string, priority core.TaskPriority, d time.Duration) {
		durations <- runnerName
	})

	s := NewScheduler("records-duration", 2, cfg)
	defer s.Shutdown()

	done := make(chan struct{})
	s.Schedule(0, PriorityHigh, func() { close(done) })
	<-done

	select {
	case runnerName := <-durations:
		if runnerName != "records-duration" {
			t.Fatalf("RecordTaskDuration runnerName = %q, want records-duration", runnerName)
		}
	case <-time.After(time.Second):
		t.Fatal("RecordTaskDuration was never called")
	}
}

type rejectedTaskHandlerFunc func(runnerName, reason string)

func (f rejectedTaskHandlerFunc) HandleRejectedTask(runnerName, reason string) { f(runnerName, reason) }

type recordTaskDurationFunc func(runnerName string, priority core.TaskPriority, d time.Duration)

func (f recordTaskDurationFunc) RecordTaskDuration(runnerName string, priority core.TaskPriority, d time.Duration) {
	f(runnerName, priority, d)
}
func (recordTaskDurationFunc) RecordTaskPanic(runnerName string, panicInfo any)       {}
func (recordTaskDurationFunc) RecordQueueDepth(runnerName string, depth int)          {}
func (recordTaskDurationFunc) RecordTaskRejected(runnerName string, reason string)    {}

// TestScheduler_ShutdownIsIdempotent verifies calling Shutdown twice does not
// panic or deadlock.
func TestScheduler_ShutdownIsIdempotent(t *testing.T) {
	s := NewScheduler("shutdown-idempotent", 2, nil)
	s.Shutdown()
	s.Shutdown()
	if s.IsRunning() {
		t.Fatal("IsRunning() = true after Shutdown")
	}
}

// TestScheduler_RecentResumptions verifies executed resumes are recorded in
// the scheduler's diagnostic history, newest first.
func TestScheduler_RecentResumptions(t *testing.T) {
	s := NewScheduler("recent-resumptions", 2, nil)
	defer s.Shutdown()

	const n = 5
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		s.Schedule(0, PriorityDefault, func() { done <- struct{}{} })
	}
	for i := 0; i < n; i++ {
		<-done
	}

	// Give the history write in Schedule's wrapper a moment to land.
	time.Sleep(20 * time.Millisecond)

	records := s.RecentResumptions(n)
	if len(records) != n {
		t.Fatalf("RecentResumptions(%d) returned %d records, want %d", n, len(records), n)
	}
	for _, r := range records {
		if r.ResumedAt.Before(r.QueuedAt) {
			t.Fatalf("record ResumedAt %v before QueuedAt %v", r.ResumedAt, r.QueuedAt)
		}
	}
}
