package manager

import "context"

// Unload releases a detector's live capability, decrements the memory
// ledger (floored at zero), and returns the detector to unloaded.
// Idempotent: unloading a detector that is not ready is a no-op.
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return ErrDetectorNotFound(id)
	}
	if inst.state != StateReady {
		// Error and unloaded states both settle at unloaded without
		// touching the ledger; loading is left to finish on its own.
		if inst.state == StateError {
			m.setStateLocked(inst, StateUnloaded, nil)
			inst.lastErr = ""
		}
		m.mu.Unlock()
		return nil
	}
	det := inst.det
	m.releaseLocked(inst)
	m.setStateLocked(inst, StateUnloaded, nil)
	m.unloadsTotal++
	m.mu.Unlock()

	if det != nil {
		if err := det.Unload(ctx); err != nil {
			m.log.Warn().Err(err).Str("detector", id).Msg("detector unload reported error")
		}
	}
	m.publisher.Publish(Event{Name: EventUnloadDone, DetectorID: id})
	return nil
}

// UnloadAll unloads every ready detector. Errors are already absorbed per
// detector, so this never fails.
func (m *Manager) UnloadAll(ctx context.Context) {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()
	for _, id := range ids {
		_ = m.Unload(ctx, id)
	}
}

// releaseLocked detaches the live capability and releases its memory
// estimate. Caller holds m.mu and is responsible for the state change.
func (m *Manager) releaseLocked(inst *instance) {
	if inst.state != StateReady {
		return
	}
	m.usedEstMB -= inst.entry.Descriptor.EstimatedMemoryMB
	if m.usedEstMB < 0 {
		m.usedEstMB = 0
	}
	inst.det = nil
}
