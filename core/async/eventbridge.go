package async

import (
	"reflect"
	"sync"
)

// maxWaitShardHandles bounds how many Events a single reflect.Select call
// spans, leaving one slot for the shard's own wake channel. The source caps a
// single wait-set at 64 handles total; a production port above that cap must
// partition, which is exactly what waitShard does here.
const maxWaitShardHandles = 63

type eventRegistration struct {
	event  *Event
	resume func()
}

// eventBridge owns the auxiliary thread(s) that multiplex Events. Its first
// shard starts with the bridge; further shards are added lazily as
// registrations exceed the per-shard handle cap.
type eventBridge struct {
	s      *Scheduler
	mu     sync.Mutex
	shards []*waitShard
}

func newEventBridge(s *Scheduler) *eventBridge {
	sh := newWaitShard()
	go sh.run()
	return &eventBridge{s: s, shards: []*waitShard{sh}}
}

// register arranges for resume to run (via the owning Scheduler, respecting
// whatever affinity/priority the caller closed over) the next time ev fires.
func (b *eventBridge) register(ev *Event, resume func()) {
	reg := eventRegistration{event: ev, resume: resume}

	b.mu.Lock()
	for _, sh := range b.shards {
		if sh.tryAdd(reg) {
			b.mu.Unlock()
			return
		}
	}
	sh := newWaitShard()
	b.shards = append(b.shards, sh)
	b.mu.Unlock()

	go sh.run()
	sh.tryAdd(reg)
}

func (b *eventBridge) registeredCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, sh := range b.shards {
		n += sh.len()
	}
	return n
}

func (b *eventBridge) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sh := range b.shards {
		sh.stop()
	}
}

// waitShard runs one reflect.Select loop over up to maxWaitShardHandles
// registered Events plus its closing channel (case 0) and its own wake
// channel (case 1).
type waitShard struct {
	mu      sync.Mutex
	regs    []eventRegistration
	wake    chan struct{}
	closing chan struct{}
}

func newWaitShard() *waitShard {
	return &waitShard{
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
	}
}

func (w *waitShard) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.regs)
}

func (w *waitShard) tryAdd(reg eventRegistration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.regs) >= maxWaitShardHandles {
		return false
	}
	w.regs = append(w.regs, reg)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *waitShard) removeAt(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.regs) {
		return
	}
	// Shift the surviving tail down over the removed slot, keeping the
	// remaining registrations in their original order.
	w.regs = append(w.regs[:i], w.regs[i+1:]...)
}

func (w *waitShard) stop() {
	close(w.closing)
}

func (w *waitShard) run() {
	for {
		w.mu.Lock()
		snapshot := make([]eventRegistration, len(w.regs))
		copy(snapshot, w.regs)
		w.mu.Unlock()

		cases := make([]reflect.SelectCase, 0, len(snapshot)+2)
		cases = append(cases,
			reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(w.closing)},
			reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(w.wake)},
		)
		for _, r := range snapshot {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.event.channel())})
		}

		chosen, _, _ := reflect.Select(cases)
		switch chosen {
		case 0:
			return
		case 1:
			// A new registration arrived (or the shard was nudged); rebuild
			// the case list on the next iteration.
			continue
		default:
			fired := snapshot[chosen-2]
			w.removeAt(indexOfRegistration(w, fired))
			fired.resume()
		}
	}
}

func indexOfRegistration(w *waitShard, target eventRegistration) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, r := range w.regs {
		if r.event == target.event {
			return i
		}
	}
	return -1
}
