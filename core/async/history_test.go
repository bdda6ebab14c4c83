package async

import (
	"testing"
	"time"
)

// TestResumptionHistory_RecentNewestFirst verifies recent() orders entries
// newest first and respects the requested limit.
func TestResumptionHistory_RecentNewestFirst(t *testing.T) {
	h := newResumptionHistory(10)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.record(ResumptionRecord{CPU: i, QueuedAt: base, ResumedAt: base})
	}

	all := h.recent(0)
	if len(all) != 5 {
		t.Fatalf("recent(0) returned %d entries, want 5", len(all))
	}
	if all[0].CPU != 4 {
		t.Fatalf("recent(0)[0].CPU = %d, want 4 (newest first)", all[0].CPU)
	}
	if all[4].CPU != 0 {
		t.Fatalf("recent(0)[4].CPU = %d, want 0 (oldest last)", all[4].CPU)
	}

	limited := h.recent(2)
	if len(limited) != 2 || limited[0].CPU != 4 || limited[1].CPU != 3 {
		t.Fatalf("recent(2) = %+v, want CPUs [4 3]", limited)
	}
}

// TestResumptionHistory_WrapsAtCapacity verifies the ring buffer overwrites
// its oldest entries once full rather than growing unbounded.
func TestResumptionHistory_WrapsAtCapacity(t *testing.T) {
	h := newResumptionHistory(3)
	for i := 0; i < 5; i++ {
		h.record(ResumptionRecord{CPU: i})
	}

	all := h.recent(0)
	if len(all) != 3 {
		t.Fatalf("recent(0) after wraparound returned %d entries, want 3", len(all))
	}
	// The last three recorded were CPUs 2, 3, 4 -- newest first.
	want := []int{4, 3, 2}
	for i, r := range all {
		if r.CPU != want[i] {
			t.Fatalf("recent(0)[%d].CPU = %d, want %d", i, r.CPU, want[i])
		}
	}
}

// TestResumptionHistory_EmptyReturnsNothing verifies a fresh history has no
// entries to report.
func TestResumptionHistory_EmptyReturnsNothing(t *testing.T) {
	h := newResumptionHistory(5)
	if got := h.recent(0); len(got) != 0 {
		t.Fatalf("recent(0) on empty history = %d entries, want 0", len(got))
	}
}
