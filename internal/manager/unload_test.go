package manager

import (
	"context"
	"errors"
	"testing"
)

func TestUnloadReleasesLedgerAndCapability(t *testing.T) {
	det := &fakeDetector{}
	m := testManager(Config{})
	_ = m.Register(entryFor("a", 256, 0, det))

	ctx := context.Background()
	if _, err := m.Load(ctx, "a", LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !det.Loaded() {
		t.Fatalf("detector should be loaded")
	}
	if err := m.Unload(ctx, "a"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if det.Loaded() {
		t.Fatalf("unload must invoke the detector's own unload capability")
	}
	if s, _ := m.State("a"); s != StateUnloaded {
		t.Fatalf("state = %v", s)
	}
	if m.MemoryStats().UsedMB != 0 {
		t.Fatalf("ledger = %d after unload", m.MemoryStats().UsedMB)
	}
}

func TestUnloadIsIdempotent(t *testing.T) {
	m := testManager(Config{})
	_ = m.Register(entryFor("a", 100, 0, &fakeDetector{}))

	ctx := context.Background()
	if _, err := m.Load(ctx, "a", LoadOptions{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Unload(ctx, "a"); err != nil {
		t.Fatalf("first Unload: %v", err)
	}
	ledger := m.MemoryStats().UsedMB
	if err := m.Unload(ctx, "a"); err != nil {
		t.Fatalf("second Unload must not fail: %v", err)
	}
	if got := m.MemoryStats().UsedMB; got != ledger {
		t.Fatalf("second unload changed the ledger: %d -> %d", ledger, got)
	}
}

func TestUnloadNeverLoadedDetector(t *testing.T) {
	m := testManager(Config{})
	_ = m.Register(entryFor("a", 100, 0, &fakeDetector{}))
	if err := m.Unload(context.Background(), "a"); err != nil {
		t.Fatalf("unload of a never-loaded detector: %v", err)
	}
}

func TestUnloadClearsErrorState(t *testing.T) {
	det := &fakeDetector{loadErr: errors.New("boom")}
	m := testManager(Config{})
	_ = m.Register(entryFor("a", 100, 0, det))

	ctx := context.Background()
	_, _ = m.Load(ctx, "a", LoadOptions{})
	if s, _ := m.State("a"); s != StateError {
		t.Fatalf("precondition: state = %v", s)
	}
	if err := m.Unload(ctx, "a"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if s, _ := m.State("a"); s != StateUnloaded {
		t.Fatalf("state after unload = %v", s)
	}
}

func TestUnloadAll(t *testing.T) {
	m := testManager(Config{})
	_ = m.Register(entryFor("a", 100, 0, &fakeDetector{}))
	_ = m.Register(entryFor("b", 200, 0, &fakeDetector{}))

	ctx := context.Background()
	if res := m.LoadMany(ctx, []string{"a", "b"}, BatchOptions{}); len(res.Failed) != 0 {
		t.Fatalf("LoadMany: %v", res.Failed)
	}
	m.UnloadAll(ctx)
	if m.Ready() {
		t.Fatalf("no detector should remain ready")
	}
	if m.MemoryStats().UsedMB != 0 {
		t.Fatalf("ledger = %d after unload all", m.MemoryStats().UsedMB)
	}
}

func TestUnloadUnknownID(t *testing.T) {
	m := testManager(Config{})
	if err := m.Unload(context.Background(), "ghost"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
