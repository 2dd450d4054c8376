package backend

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("session closed")

// newAccelerated probes for a linked accelerated runtime. None ships in
// the default build, so Resolve falls through to the portable executor.
// A GPU-enabled build replaces this probe.
func newAccelerated(zerolog.Logger) Backend { return nil }
