package manager

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"detectd/internal/registry"
	"detectd/pkg/types"
)

// fakeDetector is a lightweight in-memory capability used for tests.
type fakeDetector struct {
	loadDelay    time.Duration
	loadErr      error
	predictDelay time.Duration
	predictErr   error
	pred         types.Prediction
	honorCtx     bool

	mu     sync.Mutex
	loaded bool
}

func (f *fakeDetector) Load(ctx context.Context, opts registry.LoadOptions) error {
	if opts.OnProgress != nil {
		opts.OnProgress(0)
	}
	if f.loadDelay > 0 {
		select {
		case <-time.After(f.loadDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.loadErr != nil {
		return f.loadErr
	}
	if opts.OnProgress != nil {
		opts.OnProgress(100)
	}
	f.mu.Lock()
	f.loaded = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDetector) Predict(ctx context.Context, img types.Image) (types.Prediction, error) {
	if f.predictDelay > 0 {
		if f.honorCtx {
			select {
			case <-time.After(f.predictDelay):
			case <-ctx.Done():
				return types.Prediction{}, ctx.Err()
			}
		} else {
			time.Sleep(f.predictDelay)
		}
	}
	if f.predictErr != nil {
		return types.Prediction{}, f.predictErr
	}
	return f.pred, nil
}

func (f *fakeDetector) Unload(context.Context) error {
	f.mu.Lock()
	f.loaded = false
	f.mu.Unlock()
	return nil
}

func (f *fakeDetector) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

// countingFactory hands out a fixed fake and counts instantiations.
type countingFactory struct {
	det   *fakeDetector
	calls atomic.Int64
}

func (c *countingFactory) factory() registry.Detector {
	c.calls.Add(1)
	return c.det
}

func entryFor(id string, memMB, priority int, det *fakeDetector) registry.Entry {
	return registry.Entry{
		Descriptor: types.DetectorDescriptor{
			ID:                id,
			DisplayName:       id,
			EstimatedMemoryMB: memMB,
			Category:          types.CategoryFullImage,
			ArtifactURL:       "mem://" + id,
			Priority:          priority,
		},
		New: func() registry.Detector { return det },
	}
}

func testManager(cfg Config) *Manager {
	cfg.Logger = zerolog.New(io.Discard)
	return NewWithConfig(cfg)
}

func aiPred(prob, conf float64) types.Prediction {
	return types.Prediction{AIProbability: prob, Confidence: conf}
}
