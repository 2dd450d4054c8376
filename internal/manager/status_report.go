package manager

import (
	"time"

	"detectd/pkg/types"
)

// MemoryStats returns the memory ledger snapshot.
func (m *Manager) MemoryStats() types.MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memoryStatsLocked()
}

func (m *Manager) memoryStatsLocked() types.MemoryStats {
	ready := 0
	for _, inst := range m.instances {
		if inst.state == StateReady {
			ready++
		}
	}
	return types.MemoryStats{
		UsedMB:      m.usedEstMB,
		ThresholdMB: m.memoryThresholdMB,
		Pressure:    m.usedEstMB > m.memoryThresholdMB,
		ReadyCount:  ready,
	}
}

// Status builds a detailed status report. Pure read, no side effects.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		Memory:         m.memoryStatsLocked(),
		LoadsTotal:     m.loadsTotal,
		UnloadsTotal:   m.unloadsTotal,
		RunsTotal:      m.runsTotal,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	resp.Detectors = make([]types.DetectorStatus, 0, len(m.order))
	for _, id := range m.order {
		inst := m.instances[id]
		ds := types.DetectorStatus{
			ID:                id,
			State:             string(inst.state),
			EstimatedMemoryMB: inst.entry.Descriptor.EstimatedMemoryMB,
			LastError:         inst.lastErr,
		}
		if !inst.loadedAt.IsZero() {
			ds.LoadedAt = inst.loadedAt.Unix()
		}
		if !inst.lastUsed.IsZero() {
			ds.LastUsed = inst.lastUsed.Unix()
		}
		if inst.state == StateLoading {
			resp.LoadsInProgress++
		}
		resp.Detectors = append(resp.Detectors, ds)
	}
	return resp
}
