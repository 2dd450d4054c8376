package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterRejectsDuplicateID(t *testing.T) {
	m := testManager(Config{})
	e := entryFor("a", 100, 0, &fakeDetector{})
	if err := m.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := m.Register(e)
	if !IsDuplicateID(err) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoadTransitionsAndLedger(t *testing.T) {
	pub := NewMemoryPublisher()
	m := testManager(Config{Publisher: pub})
	if err := m.Register(entryFor("a", 300, 0, &fakeDetector{})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var states []DetectorState
	h, err := m.Load(context.Background(), "a", LoadOptions{
		OnStatusChange: func(s DetectorState) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.ID != "a" || h.LoadedAt.IsZero() {
		t.Fatalf("bad handle: %+v", h)
	}
	if len(states) != 2 || states[0] != StateLoading || states[1] != StateReady {
		t.Fatalf("unexpected transitions: %v", states)
	}
	if got := m.MemoryStats().UsedMB; got != 300 {
		t.Fatalf("ledger = %d, want 300", got)
	}
	if s, _ := m.State("a"); s != StateReady {
		t.Fatalf("state = %v", s)
	}
}

func TestLoadReadyIsNoOpWithoutForce(t *testing.T) {
	fac := &countingFactory{det: &fakeDetector{}}
	m := testManager(Config{})
	e := entryFor("a", 100, 0, nil)
	e.New = fac.factory
	_ = m.Register(e)

	ctx := context.Background()
	h1, err := m.Load(ctx, "a", LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	h2, err := m.Load(ctx, "a", LoadOptions{})
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if h1.LoadedAt != h2.LoadedAt {
		t.Fatalf("no-op load must return the existing handle")
	}
	if fac.calls.Load() != 1 {
		t.Fatalf("factory called %d times, want 1", fac.calls.Load())
	}
	if m.MemoryStats().UsedMB != 100 {
		t.Fatalf("ledger must not double count: %d", m.MemoryStats().UsedMB)
	}

	// Force reload constructs a fresh capability.
	if _, err := m.Load(ctx, "a", LoadOptions{Force: true}); err != nil {
		t.Fatalf("forced Load: %v", err)
	}
	if fac.calls.Load() != 2 {
		t.Fatalf("force must rebuild the detector, factory calls = %d", fac.calls.Load())
	}
	if m.MemoryStats().UsedMB != 100 {
		t.Fatalf("ledger after force reload: %d", m.MemoryStats().UsedMB)
	}
}

func TestLoadWhileLoadingIsRejected(t *testing.T) {
	m := testManager(Config{})
	_ = m.Register(entryFor("slow", 100, 0, &fakeDetector{loadDelay: 200 * time.Millisecond}))

	ctx := context.Background()
	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = m.Load(ctx, "slow", LoadOptions{})
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the first load enter loading

	_, err := m.Load(ctx, "slow", LoadOptions{})
	if !IsConcurrentLoad(err) {
		t.Fatalf("expected concurrent load rejection, got %v", err)
	}
}

func TestLoadFailureIsLocalAndRetryable(t *testing.T) {
	det := &fakeDetector{loadErr: errors.New("download exploded")}
	m := testManager(Config{})
	_ = m.Register(entryFor("bad", 128, 0, det))

	ctx := context.Background()
	_, err := m.Load(ctx, "bad", LoadOptions{})
	if !IsLoadFailed(err) {
		t.Fatalf("expected load failure, got %v", err)
	}
	if s, _ := m.State("bad"); s != StateError {
		t.Fatalf("state = %v, want error", s)
	}
	if m.MemoryStats().UsedMB != 0 {
		t.Fatalf("failed load must not touch the ledger: %d", m.MemoryStats().UsedMB)
	}

	// Error -> loading retry succeeds once the cause clears.
	det.loadErr = nil
	if _, err := m.Load(ctx, "bad", LoadOptions{}); err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	if s, _ := m.State("bad"); s != StateReady {
		t.Fatalf("state after retry = %v", s)
	}
}

func TestLoadUnknownID(t *testing.T) {
	m := testManager(Config{})
	if _, err := m.Load(context.Background(), "ghost", LoadOptions{}); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadProgressMonotonicAndClamped(t *testing.T) {
	det := &fakeDetector{}
	m := testManager(Config{})
	_ = m.Register(entryFor("a", 10, 0, det))

	var seen []int
	_, err := m.Load(context.Background(), "a", LoadOptions{OnProgress: func(p int) { seen = append(seen, p) }})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("progress not strictly increasing after dedupe: %v", seen)
		}
	}
	if len(seen) == 0 || seen[len(seen)-1] != 100 {
		t.Fatalf("progress must reach 100: %v", seen)
	}
}

func TestLoadManyHonorsConcurrencyCap(t *testing.T) {
	const n = 6
	const width = 2
	var peak atomic.Int64
	m := testManager(Config{})
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		ids = append(ids, id)
		det := &fakeDetector{loadDelay: 30 * time.Millisecond}
		e := entryFor(id, 10, 0, det)
		_ = m.Register(e)
	}

	// Sample the loading states from the status side while the batch runs.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			loading := int64(m.Status().LoadsInProgress)
			if loading > peak.Load() {
				peak.Store(loading)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	res := m.LoadMany(context.Background(), ids, BatchOptions{Concurrency: width})
	close(stop)

	if len(res.Loaded) != n || len(res.Failed) != 0 {
		t.Fatalf("batch outcome: loaded=%d failed=%d", len(res.Loaded), len(res.Failed))
	}
	if peak.Load() > width {
		t.Fatalf("observed %d concurrent loads, cap %d", peak.Load(), width)
	}
	if peak.Load() == 0 {
		t.Fatalf("sampler never observed a loading detector")
	}
}

func TestLoadManyPartialFailureAndProgress(t *testing.T) {
	m := testManager(Config{})
	_ = m.Register(entryFor("ok1", 10, 0, &fakeDetector{}))
	_ = m.Register(entryFor("bad", 10, 0, &fakeDetector{loadErr: errors.New("no artifact")}))
	_ = m.Register(entryFor("ok2", 10, 0, &fakeDetector{}))

	var mu sync.Mutex
	var overall [][2]int
	res := m.LoadMany(context.Background(), []string{"ok1", "bad", "ok2"}, BatchOptions{
		Concurrency: 2,
		OnOverallProgress: func(done, total int) {
			mu.Lock()
			overall = append(overall, [2]int{done, total})
			mu.Unlock()
		},
	})
	if len(res.Loaded) != 2 {
		t.Fatalf("loaded = %v", res.Loaded)
	}
	if err, ok := res.Failed["bad"]; !ok || !IsLoadFailed(err) {
		t.Fatalf("failed map = %v", res.Failed)
	}
	if len(overall) != 3 || overall[len(overall)-1] != [2]int{3, 3} {
		t.Fatalf("overall progress = %v", overall)
	}
	// Siblings survived the failure.
	for _, id := range []string{"ok1", "ok2"} {
		if s, _ := m.State(id); s != StateReady {
			t.Fatalf("%s state = %v", id, s)
		}
	}
}

func TestLoadManySkipsReadyDetectors(t *testing.T) {
	fac := &countingFactory{det: &fakeDetector{}}
	m := testManager(Config{})
	e := entryFor("a", 10, 0, nil)
	e.New = fac.factory
	_ = m.Register(e)
	_ = m.Register(entryFor("b", 10, 0, &fakeDetector{}))

	ctx := context.Background()
	if _, err := m.Load(ctx, "a", LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	res := m.LoadMany(ctx, []string{"a", "b"}, BatchOptions{})
	if len(res.Loaded) != 2 || len(res.Failed) != 0 {
		t.Fatalf("batch outcome: %+v", res)
	}
	if fac.calls.Load() != 1 {
		t.Fatalf("ready detector must be filtered out, factory calls = %d", fac.calls.Load())
	}
}
