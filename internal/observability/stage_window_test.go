package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageCompletion, 500)
	w.Observe(StageCompletion, 700)
	w.Observe(StageCompletion, 900)
	w.Observe(StageHistoryRead, 3)
	w.Observe("", 10)
	w.Observe(StagePersist, -1)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageCompletion {
		t.Fatalf("Stages[0].Stage = %q, want %q", s.Stage, StageCompletion)
	}
	if s.Samples != 3 || s.LastMS != 900 || s.P50MS != 700 || s.AvgMS != 700 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
}

func TestStageWindowWrapsAtCapacity(t *testing.T) {
	w := newStageWindow(2)
	for _, v := range []float64{1, 2, 30, 40} {
		w.Observe(StageChatTotal, v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 35 {
		t.Fatalf("AvgMS = %.2f, want 35 (oldest samples evicted)", s.AvgMS)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveChat("ok")
	m.ObserveStoreError("append")
	m.ObserveProviderError("mock", "timeout")
	m.ObserveCompletionLatency(time.Second)
	m.ObserveLockWait(time.Millisecond)
	m.ObserveStage(StagePersist, time.Millisecond)
	m.ObserveWSMessage("inbound")
	if got := m.SnapshotStages(); len(got.Stages) != 0 {
		t.Fatalf("nil SnapshotStages() = %+v, want empty", got)
	}
}
