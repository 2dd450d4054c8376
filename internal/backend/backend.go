// Package backend abstracts the compute runtime that executes model
// artifacts. The orchestration core only asks a backend for a session and
// feeds it image bytes; graph parsing and execution live behind this
// boundary. Backend selection happens once per process: the accelerated
// runtime when the binary was built with it, the portable executor
// otherwise.
package backend

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"detectd/internal/retry"
)

// Scores is the raw output of one session run. Probability is 0-1 at this
// boundary; detector adapters normalize to 0-100.
type Scores struct {
	AIProbability float64
	Confidence    float64
}

// Session is a live compute context for one loaded artifact.
type Session interface {
	// Run executes the model over the raw image bytes. Implementations
	// must return promptly when ctx is canceled.
	Run(ctx context.Context, input []byte) (Scores, error)
	// Close releases session resources.
	Close() error
}

// Backend creates compute sessions from serialized model artifacts.
type Backend interface {
	Name() string
	// NewSession parses the artifact and prepares it for inference.
	// onProgress, when non-nil, receives 0-100 and is advisory only.
	NewSession(ctx context.Context, artifact []byte, onProgress func(pct int)) (Session, error)
}

// ErrEmptyArtifact is returned for zero-length artifact blobs.
var ErrEmptyArtifact = errors.New("invalid artifact: empty blob")

var (
	resolveOnce sync.Once
	resolved    Backend
)

// Resolve selects the process-wide backend. The choice is made once and is
// read-only afterwards.
func Resolve(log zerolog.Logger) Backend {
	resolveOnce.Do(func() {
		if b := newAccelerated(log); b != nil {
			resolved = b
			log.Info().Str("backend", resolved.Name()).Msg("accelerated backend selected")
			return
		}
		resolved = newPortable(log)
		log.Info().Str("backend", resolved.Name()).Msg("portable backend selected")
	})
	return resolved
}

// NewSessionWithRetry wraps session creation in the retry policy. Transient
// allocator or device-busy failures are retried; corrupt artifacts are not.
func NewSessionWithRetry(ctx context.Context, b Backend, artifact []byte, p retry.Policy, onProgress func(pct int)) (Session, error) {
	var s Session
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		var err error
		s, err = b.NewSession(ctx, artifact, onProgress)
		return err
	})
	return s, err
}
