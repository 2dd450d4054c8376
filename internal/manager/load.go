package manager

import (
	"context"
	"sync"
	"time"

	"detectd/internal/registry"
)

// LoadOptions tunes a single detector load.
type LoadOptions struct {
	// Force reloads a ready detector instead of returning its handle.
	Force bool
	// OnProgress receives 0-100, monotonically non-decreasing. Advisory.
	OnProgress func(pct int)
	// OnStatusChange observes state transitions for this detector.
	OnStatusChange func(state DetectorState)
}

// Load transitions one detector to ready. Already-ready detectors are a
// no-op returning the existing handle unless Force is set. A load already
// in flight is rejected, never silently started twice. Failures leave the
// detector in the error state; the next Load call retries.
func (m *Manager) Load(ctx context.Context, id string, opts LoadOptions) (Handle, error) {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return Handle{}, ErrDetectorNotFound(id)
	}
	var stale registry.Detector
	switch inst.state {
	case StateLoading:
		m.mu.Unlock()
		return Handle{}, concurrentLoadError{id: id}
	case StateReady:
		if !opts.Force {
			h := Handle{ID: id, LoadedAt: inst.loadedAt}
			m.mu.Unlock()
			return h, nil
		}
		// Forced reload releases the live capability first.
		stale = inst.det
		m.releaseLocked(inst)
	}
	det := inst.entry.New()
	inst.det = det
	inst.lastErr = ""
	m.setStateLocked(inst, StateLoading, opts.OnStatusChange)
	m.mu.Unlock()

	if stale != nil {
		if uerr := stale.Unload(ctx); uerr != nil {
			m.log.Warn().Err(uerr).Str("detector", id).Msg("stale capability unload reported error")
		}
	}
	err := det.Load(ctx, registry.LoadOptions{OnProgress: m.progressFunc(id, opts.OnProgress)})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		inst.det = nil
		inst.lastErr = err.Error()
		m.setStateLocked(inst, StateError, opts.OnStatusChange)
		m.publisher.Publish(Event{Name: EventLoadFailed, DetectorID: id, Fields: map[string]any{"error": err.Error()}})
		m.log.Warn().Err(err).Str("detector", id).Msg("detector load failed")
		return Handle{}, loadFailedError{id: id, cause: err}
	}
	inst.loadedAt = time.Now()
	m.usedEstMB += inst.entry.Descriptor.EstimatedMemoryMB
	m.loadsTotal++
	m.setStateLocked(inst, StateReady, opts.OnStatusChange)
	m.publisher.Publish(Event{Name: EventLoadDone, DetectorID: id, Fields: map[string]any{
		"est_memory_mb": inst.entry.Descriptor.EstimatedMemoryMB,
	}})
	if m.usedEstMB > m.memoryThresholdMB {
		m.publisher.Publish(Event{Name: EventMemoryPressure, Fields: map[string]any{
			"used_mb": m.usedEstMB, "threshold_mb": m.memoryThresholdMB,
		}})
		m.log.Warn().Int("used_mb", m.usedEstMB).Int("threshold_mb", m.memoryThresholdMB).
			Msg("memory estimate above threshold")
	}
	return Handle{ID: id, LoadedAt: inst.loadedAt}, nil
}

// progressFunc clamps progress to 0-100, keeps it non-decreasing, and
// fans it out to the caller and the event stream.
func (m *Manager) progressFunc(id string, cb func(int)) func(int) {
	var mu sync.Mutex
	last := -1
	return func(pct int) {
		if pct < 0 {
			pct = 0
		} else if pct > 100 {
			pct = 100
		}
		mu.Lock()
		if pct <= last {
			mu.Unlock()
			return
		}
		last = pct
		mu.Unlock()
		m.publisher.Publish(Event{Name: EventLoadProgress, DetectorID: id, Fields: map[string]any{"pct": pct}})
		if cb != nil {
			cb(pct)
		}
	}
}

// setStateLocked transitions an instance and publishes the change.
// Caller holds m.mu.
func (m *Manager) setStateLocked(inst *instance, s DetectorState, cb func(DetectorState)) {
	inst.state = s
	m.publisher.Publish(Event{Name: EventStatusChange, DetectorID: inst.entry.Descriptor.ID, Fields: map[string]any{
		"state": string(s),
	}})
	if cb != nil {
		cb(s)
	}
}

// BatchOptions tunes LoadMany.
type BatchOptions struct {
	// Concurrency caps simultaneous loads. 0 uses the manager default.
	Concurrency int
	// OnOverallProgress receives (completed, total) after each detector
	// finishes, success or failure.
	OnOverallProgress func(completed, total int)
	// OnDetectorProgress receives per-detector load percentages.
	OnDetectorProgress func(id string, pct int)
}

// BatchResult reports per-ID outcomes of LoadMany. Partial success is the
// normal case.
type BatchResult struct {
	Loaded []string
	Failed map[string]error
}

// LoadMany loads the given detectors through a bounded work queue: at
// most Concurrency loads are in flight at any instant, and as each
// finishes the next queued ID starts, so the queue drains at full width
// down to the tail. Already-ready detectors are filtered out and counted
// as loaded. Individual failures never abort sibling loads.
func (m *Manager) LoadMany(ctx context.Context, ids []string, opts BatchOptions) BatchResult {
	res := BatchResult{Failed: make(map[string]error)}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = m.loadConcurrency
	}

	// Filter ready detectors up front so they do not occupy queue slots.
	var queue []string
	m.mu.RLock()
	for _, id := range ids {
		if inst, ok := m.instances[id]; ok && inst.state == StateReady {
			res.Loaded = append(res.Loaded, id)
			continue
		}
		queue = append(queue, id)
	}
	m.mu.RUnlock()

	total := len(ids)
	completed := total - len(queue)
	if opts.OnOverallProgress != nil && completed > 0 {
		opts.OnOverallProgress(completed, total)
	}
	if len(queue) == 0 {
		return res
	}
	if workers > len(queue) {
		workers = len(queue)
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		work = make(chan string)
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for id := range work {
				var onPct func(int)
				if opts.OnDetectorProgress != nil {
					cb, cid := opts.OnDetectorProgress, id
					onPct = func(pct int) { cb(cid, pct) }
				}
				_, err := m.Load(ctx, id, LoadOptions{OnProgress: onPct})
				mu.Lock()
				if err != nil {
					res.Failed[id] = err
				} else {
					res.Loaded = append(res.Loaded, id)
				}
				completed++
				done := completed
				mu.Unlock()
				if opts.OnOverallProgress != nil {
					opts.OnOverallProgress(done, total)
				}
			}
		}()
	}
	for _, id := range queue {
		work <- id
	}
	close(work)
	wg.Wait()
	return res
}
