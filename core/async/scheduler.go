package async

import (
	"context"
	"math"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftpool/go-task-runner/core"
)

const goldenRatioConjugate = 0.6180339887498949

// ResumptionRecord is a diagnostic-only entry describing one dequeued
// resumption; it is never consulted by the scheduling protocol itself.
type ResumptionRecord struct {
	CPU       int
	Priority  int
	QueuedAt  time.Time
	ResumedAt time.Time
	Panicked  bool
}

// SchedulerStats is a point-in-time snapshot of scheduler occupancy.
type SchedulerStats struct {
	CPUCount        int
	QueueDepths     []int
	ActiveWorkers   int
	RegisteredWaits int
	ShuttingDown    bool
}

// Scheduler owns a fixed array of per-CPU work queues, the event-wait bridge,
// and the routing policy that places a resumable onto one of those queues
// given an affinity mask and a priority.
type Scheduler struct {
	id      string
	cpu     int // C = min(hardware concurrency, 64)
	queues  []*workQueue
	bridge  *eventBridge
	rot     atomic.Uint64
	active  atomic.Int64
	history *resumptionHistory

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg *core.TaskSchedulerConfig

	shuttingDown atomic.Bool
}

// NewScheduler constructs a Scheduler with C = min(workers, 64) per-CPU work
// queues and starts every worker immediately -- construction is where the
// worker threads and the event thread are born, matching the process-lifetime
// contract in the external-interfaces section.
func NewScheduler(id string, workers int, cfg *core.TaskSchedulerConfig) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > 64 {
		workers = 64
	}
	if cfg == nil {
		cfg = core.DefaultTaskSchedulerConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		id:      id,
		cpu:     workers,
		queues:  make([]*workQueue, workers),
		history: newResumptionHistory(100),
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
	}
	s.bridge = newEventBridge(s)

	s.logger().Info("scheduler starting", core.F("id", id), core.F("cpus", workers))
	for i := 0; i < workers; i++ {
		s.queues[i] = newWorkQueue(i)
		s.wg.Add(1)
		go func(wq *workQueue) {
			defer s.wg.Done()
			wq.run(s)
		}(s.queues[i])
	}
	return s
}

func (s *Scheduler) logger() core.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return &core.NoOpLogger{}
}

// corePriority maps an async sub-queue priority onto core's three-tier
// vocabulary for Metrics.RecordTaskDuration.
func corePriority(priority int) core.TaskPriority {
	if priority >= PriorityHigh {
		return core.TaskPriorityUserBlocking
	}
	return core.TaskPriorityUserVisible
}

var (
	defaultScheduler     *Scheduler
	defaultSchedulerOnce sync.Once
)

// Default returns the process-wide lazily-initialized scheduler singleton.
// Its construction starts every worker thread.
func Default() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewScheduler("default-scheduler", runtime.NumCPU(), nil)
	})
	return defaultScheduler
}

// canonicalAffinity normalizes a raw mask: 0 means "all CPUs allowed"; a set
// bit i means CPU i is allowed. Bits at or above c are cleared.
func canonicalAffinity(mask uint64, c int) uint64 {
	var all uint64
	if c >= 64 {
		all = ^uint64(0)
	} else {
		all = (uint64(1) << uint(c)) - 1
	}
	if mask == 0 {
		return all
	}
	return mask & all
}

func nthSetBit(mask uint64, n int) int {
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return bits.TrailingZeros64(mask)
}

// pickCPU scans the allowed CPUs in index order for the first empty queue;
// failing that, it falls back to a low-discrepancy Kronecker sequence (an
// atomic counter times the golden ratio conjugate, fractional part selects
// the n-th allowed CPU) so repeated misses still spread load evenly.
func (s *Scheduler) pickCPU(mask uint64) int {
	for i := 0; i < s.cpu; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if s.queues[i].approxLen() == 0 {
			return i
		}
	}
	popcount := bits.OnesCount64(mask)
	if popcount == 0 {
		return 0
	}
	c := s.rot.Add(1)
	frac := math.Mod(float64(c)*goldenRatioConjugate, 1.0)
	n := int(frac * float64(popcount))
	return nthSetBit(mask, n)
}

// Schedule places resume onto a work queue chosen by affinity (0 = any CPU,
// else a bitmask of allowed CPUs) and priority (PriorityDefault/PriorityHigh).
func (s *Scheduler) Schedule(affinity uint64, priority int, resume func()) {
	s.enqueue(affinity, priority, resume)
}

// enqueue is Schedule's implementation, returning the CPU it chose so a
// caller parked on its own continuation (TaskContext.Suspend) can learn
// which worker will resume it.
func (s *Scheduler) enqueue(affinity uint64, priority int, resume func()) int {
	if s.shuttingDown.Load() {
		if s.cfg.RejectedTaskHandler != nil {
			s.cfg.RejectedTaskHandler.HandleRejectedTask(s.id, "scheduler shutting down")
		}
		return -1
	}
	mask := canonicalAffinity(affinity, s.cpu)
	cpu := s.pickCPU(mask)
	priority = clampPriority(priority)
	queuedAt := time.Now()
	s.queues[cpu].push(priority, func() {
		start := time.Now()
		panicked := true
		defer func() {
			s.history.record(ResumptionRecord{CPU: cpu, Priority: priority, QueuedAt: queuedAt, ResumedAt: start, Panicked: panicked})
		}()
		resume()
		panicked = false
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordTaskDuration(s.id, corePriority(priority), time.Since(start))
		}
	})
	return cpu
}

func clampPriority(priority int) int {
	if priority < PriorityDefault {
		return PriorityDefault
	}
	if priority > PriorityHigh {
		return PriorityHigh
	}
	return priority
}

// AwaitEvent suspends the calling task's goroutine until ev fires, then
// resumes the remainder of the task on a queue chosen by affinity/priority --
// the scheduler-hop path permitted by the source for event-driven resumption.
func (s *Scheduler) AwaitEvent(ev *Event, affinity uint64, priority int) {
	done := make(chan struct{})
	s.bridge.register(ev, func() {
		if cpu := s.enqueue(affinity, priority, func() { close(done) }); cpu < 0 {
			close(done)
		}
	})
	<-done
}

func (s *Scheduler) runResumption(cpu int, resume func()) {
	s.active.Add(1)
	defer s.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			s.onTaskPanic(r, nil)
		}
	}()
	resume()
}

func (s *Scheduler) onTaskPanic(panicInfo any, stack []byte) {
	s.logger().Error("task panicked", core.F("scheduler", s.id), core.F("panic", panicInfo))
	if s.cfg.PanicHandler != nil {
		s.cfg.PanicHandler.HandlePanic(s.ctx, s.id, -1, panicInfo, stack)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordTaskPanic(s.id, panicInfo)
	}
}

// Shutdown stops accepting new work, drains each per-CPU worker, and tears
// down the event bridge.
func (s *Scheduler) Shutdown() {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	s.logger().Info("scheduler shutting down", core.F("id", s.id))
	s.cancel()
	s.bridge.shutdown()
	for _, wq := range s.queues {
		wq.shutdown()
	}
	s.wg.Wait()
}

func (s *Scheduler) Stats() SchedulerStats {
	depths := make([]int, len(s.queues))
	for i, wq := range s.queues {
		depths[i] = wq.approxLen()
	}
	return SchedulerStats{
		CPUCount:        s.cpu,
		QueueDepths:     depths,
		ActiveWorkers:   int(s.active.Load()),
		RegisteredWaits: s.bridge.registeredCount(),
		ShuttingDown:    s.shuttingDown.Load(),
	}
}

func (s *Scheduler) RecentResumptions(limit int) []ResumptionRecord {
	return s.history.recent(limit)
}

// ID returns the scheduler's configured identifier, used as the label on
// every Metrics call it makes.
func (s *Scheduler) ID() string { return s.id }

// IsRunning reports whether Shutdown has been called.
func (s *Scheduler) IsRunning() bool { return !s.shuttingDown.Load() }
