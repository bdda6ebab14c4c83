package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/riftpool/go-task-runner/core/async"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current per-CPU scheduler stats
// snapshots, satisfied directly by *async.Scheduler.
type SchedulerSnapshotProvider interface {
	Stats() async.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	schedulerCPUQueueDepth   *prom.GaugeVec
	schedulerActiveWorkers   *prom.GaugeVec
	schedulerRegisteredWaits *prom.GaugeVec
	schedulerShuttingDown    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedulerCPUQueueDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "scheduler_cpu_queue_depth",
		Help:      "Pending resumables on a scheduler's per-CPU work queue.",
	}, []string{"scheduler", "cpu"})
	schedulerActiveWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "scheduler_active_workers",
		Help:      "Scheduler workers currently executing a resumption.",
	}, []string{"scheduler"})
	schedulerRegisteredWaits := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "scheduler_registered_waits",
		Help:      "Events currently registered with a scheduler's event bridge.",
	}, []string{"scheduler"})
	schedulerShuttingDown := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "scheduler_shutting_down",
		Help:      "Scheduler shutdown state (1=shutting down, 0=running).",
	}, []string{"scheduler"})

	var err error
	if schedulerCPUQueueDepth, err = registerCollector(reg, schedulerCPUQueueDepth); err != nil {
		return nil, err
	}
	if schedulerActiveWorkers, err = registerCollector(reg, schedulerActiveWorkers); err != nil {
		return nil, err
	}
	if schedulerRegisteredWaits, err = registerCollector(reg, schedulerRegisteredWaits); err != nil {
		return nil, err
	}
	if schedulerShuttingDown, err = registerCollector(reg, schedulerShuttingDown); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:                 interval,
		schedulers:               make(map[string]SchedulerSnapshotProvider),
		schedulerCPUQueueDepth:   schedulerCPUQueueDepth,
		schedulerActiveWorkers:   schedulerActiveWorkers,
		schedulerRegisteredWaits: schedulerRegisteredWaits,
		schedulerShuttingDown:    schedulerShuttingDown,
	}, nil
}

// AddScheduler adds or replaces a per-CPU scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		for cpu, depth := range stats.QueueDepths {
			p.schedulerCPUQueueDepth.WithLabelValues(name, strconv.Itoa(cpu)).Set(float64(depth))
		}
		p.schedulerActiveWorkers.WithLabelValues(name).Set(float64(stats.ActiveWorkers))
		p.schedulerRegisteredWaits.WithLabelValues(name).Set(float64(stats.RegisteredWaits))
		if stats.ShuttingDown {
			p.schedulerShuttingDown.WithLabelValues(name).Set(1)
		} else {
			p.schedulerShuttingDown.WithLabelValues(name).Set(0)
		}
	}
	p.schedulersMu.RUnlock()
}
