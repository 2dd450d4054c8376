package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"detectd/internal/ensemble"
	"detectd/internal/registry"
	"detectd/pkg/types"
)

// AnalyzeOptions tunes one inference run.
type AnalyzeOptions struct {
	// Sequential runs detectors one at a time instead of concurrently.
	Sequential bool
	// MaxConcurrency caps simultaneous predicts. 0 uses the manager
	// default. Separate knob from load concurrency: inference is
	// compute-heavy, loading is download-heavy.
	MaxConcurrency int
	// Timeout is the per-detector predict budget. 0 uses the manager
	// default. A slow detector times out alone; it never blocks others.
	Timeout time.Duration
	// OnModelStart fires when a detector's predict is dispatched.
	OnModelStart func(id string)
	// OnModelComplete fires with each detector's result, failures included.
	OnModelComplete func(types.ModelResult)
	// OnProgress receives (completed, total) after each result.
	OnProgress func(completed, total int)
	// OnPartialVerdict fires with preliminary aggregates that pass the
	// unanimity gate. Subject to revision by later results.
	OnPartialVerdict func(types.AggregatedResult)
}

// Analyze runs the selected detectors over the image and aggregates their
// outputs into one ensemble verdict. Individual failures and timeouts are
// captured per detector and never abort the run. Only two conditions fail
// the call: the caller cancelled the context, or every detector failed.
func (m *Manager) Analyze(ctx context.Context, img types.Image, ids []string, opts AnalyzeOptions) (types.AggregatedResult, error) {
	runID := uuid.NewString()
	start := time.Now()

	targets, err := m.resolveRunTargets(ids)
	if err != nil {
		return types.AggregatedResult{}, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.predictTimeout
	}

	m.publisher.Publish(Event{Name: EventRunStart, RunID: runID, Fields: map[string]any{
		"detectors": len(targets),
	}})
	m.log.Debug().Str("run", runID).Int("detectors", len(targets)).Msg("inference run started")

	fold := newResultFolder(m, runID, len(targets), opts)
	if opts.Sequential {
		for _, t := range targets {
			if ctx.Err() != nil {
				break
			}
			fold.add(m.runOne(ctx, runID, t, img, timeout, opts))
		}
	} else {
		width := opts.MaxConcurrency
		if width <= 0 {
			width = m.runConcurrency
		}
		sem := make(chan struct{}, width)
		var wg sync.WaitGroup
		for _, t := range targets {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(t runTarget) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				if ctx.Err() != nil {
					return
				}
				fold.add(m.runOne(ctx, runID, t, img, timeout, opts))
			}(t)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		m.publisher.Publish(Event{Name: EventRunDone, RunID: runID, Fields: map[string]any{"cancelled": true}})
		return types.AggregatedResult{}, err
	}

	agg, err := ensemble.Aggregate(fold.results())
	agg.RunID = runID
	agg.TotalTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		m.publisher.Publish(Event{Name: EventRunDone, RunID: runID, Fields: map[string]any{"failed": true}})
		return agg, err
	}

	m.mu.Lock()
	m.runsTotal++
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: EventRunDone, RunID: runID, Fields: map[string]any{
		"verdict":    string(agg.Verdict),
		"confidence": agg.Confidence,
	}})
	return agg, nil
}

type runTarget struct {
	id       string
	det      registry.Detector
	ready    bool
	state    DetectorState
	priority int
}

// resolveRunTargets snapshots the detectors for one run, ordered by the
// static priority hint so fast detectors surface partial verdicts sooner.
// The ordering has no effect on the final aggregate. Non-ready detectors
// stay in the run and fail per-detector, consistent with the partial
// failure policy.
func (m *Manager) resolveRunTargets(ids []string) ([]runTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		ids = m.order
	}
	targets := make([]runTarget, 0, len(ids))
	for _, id := range ids {
		inst, ok := m.instances[id]
		if !ok {
			return nil, ErrDetectorNotFound(id)
		}
		targets = append(targets, runTarget{
			id:       id,
			det:      inst.det,
			ready:    inst.state == StateReady,
			state:    inst.state,
			priority: inst.entry.Descriptor.Priority,
		})
		inst.lastUsed = time.Now()
	}
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].priority < targets[j].priority })
	return targets, nil
}

// runOne executes a single detector's predict, raced against the
// per-detector timeout. A timeout is a per-detector failure like any
// other; cancellation of the run context is surfaced by the caller.
func (m *Manager) runOne(ctx context.Context, runID string, t runTarget, img types.Image, timeout time.Duration, opts AnalyzeOptions) types.ModelResult {
	if opts.OnModelStart != nil {
		opts.OnModelStart(t.id)
	}
	m.publisher.Publish(Event{Name: EventModelStart, RunID: runID, DetectorID: t.id})
	started := time.Now()

	fail := func(msg string) types.ModelResult {
		return types.ModelResult{
			ModelID:         t.id,
			Success:         false,
			Error:           msg,
			InferenceTimeMs: time.Since(started).Milliseconds(),
		}
	}
	if !t.ready || t.det == nil {
		return fail(notReadyError{id: t.id, state: t.state}.Error())
	}

	predCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		pred types.Prediction
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		p, err := t.det.Predict(predCtx, img)
		ch <- outcome{pred: p, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return fail(out.err.Error())
		}
		return types.ModelResult{
			ModelID:         t.id,
			AIProbability:   out.pred.AIProbability,
			Verdict:         out.pred.Verdict,
			Confidence:      out.pred.Confidence,
			InferenceTimeMs: time.Since(started).Milliseconds(),
			Success:         true,
		}
	case <-predCtx.Done():
		if ctx.Err() != nil {
			// Run-level cancellation; the result is discarded upstream.
			return fail("cancelled")
		}
		return fail("timeout")
	}
}

// resultFolder accumulates results as they arrive and re-evaluates the
// preliminary gate after each one. Arrival order is unspecified; the
// final aggregate is order-independent.
type resultFolder struct {
	m     *Manager
	runID string
	total int
	opts  AnalyzeOptions

	mu    sync.Mutex
	sofar []types.ModelResult
}

func newResultFolder(m *Manager, runID string, total int, opts AnalyzeOptions) *resultFolder {
	return &resultFolder{m: m, runID: runID, total: total, opts: opts}
}

func (f *resultFolder) add(r types.ModelResult) {
	f.mu.Lock()
	f.sofar = append(f.sofar, r)
	snapshot := append([]types.ModelResult(nil), f.sofar...)
	completed := len(f.sofar)
	f.mu.Unlock()

	if f.opts.OnModelComplete != nil {
		f.opts.OnModelComplete(r)
	}
	f.m.publisher.Publish(Event{Name: EventModelComplete, RunID: f.runID, DetectorID: r.ModelID, Fields: map[string]any{
		"success": r.Success,
	}})
	if f.opts.OnProgress != nil {
		f.opts.OnProgress(completed, f.total)
	}
	if completed < f.total {
		if agg, emit := ensemble.Preliminary(snapshot); emit {
			agg.RunID = f.runID
			if f.opts.OnPartialVerdict != nil {
				f.opts.OnPartialVerdict(agg)
			}
			f.m.publisher.Publish(Event{Name: EventPartialVerdict, RunID: f.runID, Fields: map[string]any{
				"verdict":    string(agg.Verdict),
				"confidence": agg.Confidence,
			}})
		}
	}
}

func (f *resultFolder) results() []types.ModelResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.ModelResult(nil), f.sofar...)
}
