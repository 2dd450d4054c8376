package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"detectd/internal/backend"
	"detectd/internal/ensemble"
	"detectd/internal/fetch"
	"detectd/internal/retry"
	"detectd/pkg/types"
)

// Deps are the collaborators artifact-backed detectors need.
type Deps struct {
	Backend backend.Backend
	Fetcher *fetch.Fetcher
	Retry   retry.Policy
	Logger  zerolog.Logger
}

// artifactDetector implements the detector capability for a serialized
// model graph fetched by URL and executed by the compute backend. Fetch
// progress maps to 0-80 and session warmup to 80-100 of the load bar.
type artifactDetector struct {
	desc types.DetectorDescriptor
	deps Deps

	mu   sync.Mutex
	sess backend.Session
}

// NewArtifactDetector builds the standard Factory for a descriptor.
func NewArtifactDetector(desc types.DetectorDescriptor, deps Deps) Factory {
	return func() Detector {
		return &artifactDetector{desc: desc, deps: deps}
	}
}

func (d *artifactDetector) Load(ctx context.Context, opts LoadOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess != nil {
		return nil
	}
	report := func(lo, hi int) func(int) {
		if opts.OnProgress == nil {
			return nil
		}
		return func(pct int) { opts.OnProgress(lo + pct*(hi-lo)/100) }
	}
	blob, err := d.deps.Fetcher.Fetch(ctx, d.desc.ID, d.desc.ArtifactURL, report(0, 80))
	if err != nil {
		return fmt.Errorf("detector %s: %w", d.desc.ID, err)
	}
	sess, err := backend.NewSessionWithRetry(ctx, d.deps.Backend, blob, d.deps.Retry, report(80, 100))
	if err != nil {
		return fmt.Errorf("detector %s: create session: %w", d.desc.ID, err)
	}
	d.sess = sess
	d.deps.Logger.Debug().Str("detector", d.desc.ID).Int("artifact_bytes", len(blob)).Msg("detector warmed")
	return nil
}

func (d *artifactDetector) Predict(ctx context.Context, img types.Image) (types.Prediction, error) {
	d.mu.Lock()
	sess := d.sess
	d.mu.Unlock()
	if sess == nil {
		return types.Prediction{}, fmt.Errorf("detector %s: not loaded", d.desc.ID)
	}
	start := time.Now()
	scores, err := sess.Run(ctx, img.Data)
	if err != nil {
		return types.Prediction{}, err
	}
	// The backend scores in 0-1; the 0-100 convention is fixed here, at
	// the adapter boundary, never inside the orchestrator.
	prob := scores.AIProbability * 100
	conf := scores.Confidence * 100
	d.deps.Logger.Debug().
		Str("detector", d.desc.ID).
		Float64("ai_probability", prob).
		Dur("took", time.Since(start)).
		Msg("predict")
	return types.Prediction{
		AIProbability: prob,
		Verdict:       ensemble.VerdictFor(prob),
		Confidence:    conf,
	}, nil
}

func (d *artifactDetector) Unload(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil {
		return nil
	}
	err := d.sess.Close()
	d.sess = nil
	return err
}

func (d *artifactDetector) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess != nil
}
