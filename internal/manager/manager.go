package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"detectd/internal/registry"
	"detectd/pkg/types"
)

// Manager owns the detector state map and the memory ledger, the only
// shared mutable state in the core. All mutations happen under mu;
// operations on different detector IDs never interfere, and concurrent
// operations on the same ID are serialized by the state machine.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*instance
	order     []string
	usedEstMB int

	memoryThresholdMB int
	loadConcurrency   int
	runConcurrency    int
	predictTimeout    time.Duration

	loadsTotal   uint64
	unloadsTotal uint64
	runsTotal    uint64

	publisher EventPublisher
	log       zerolog.Logger
	startTime time.Time
}

// Register adds a detector at runtime. Fails with a duplicate-ID error if
// the ID is already present.
func (m *Manager) Register(e registry.Entry) error {
	if e.Descriptor.ID == "" || e.New == nil {
		return ErrDetectorNotFound("(invalid entry)")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.instances[e.Descriptor.ID]; dup {
		return duplicateIDError{id: e.Descriptor.ID}
	}
	m.instances[e.Descriptor.ID] = &instance{entry: e, state: StateUnloaded}
	m.order = append(m.order, e.Descriptor.ID)
	return nil
}

// Descriptors returns registered descriptors in registration order.
func (m *Manager) Descriptors() []types.DetectorDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.DetectorDescriptor, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.instances[id].entry.Descriptor)
	}
	return out
}

// State returns the lifecycle state for one detector.
func (m *Manager) State(id string) (DetectorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return "", ErrDetectorNotFound(id)
	}
	return inst.state, nil
}

// Ready reports whether at least one detector is ready.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inst := range m.instances {
		if inst.state == StateReady {
			return true
		}
	}
	return false
}
