package manager

import (
	"time"

	"detectd/internal/registry"
)

// DetectorState is the lifecycle state of one registered detector.
// Exactly one state per detector ID at any time.
type DetectorState string

const (
	StateUnloaded DetectorState = "unloaded"
	StateLoading  DetectorState = "loading"
	StateReady    DetectorState = "ready"
	StateError    DetectorState = "error"
)

// instance tracks one registered detector. The detector capability is
// created fresh on each load attempt and dropped when the state leaves
// ready.
type instance struct {
	entry    registry.Entry
	state    DetectorState
	det      registry.Detector
	loadedAt time.Time
	lastUsed time.Time
	lastErr  string
}

// Handle is the caller-visible view of a ready detector. The live
// capability stays exclusively owned by the Manager.
type Handle struct {
	ID       string
	LoadedAt time.Time
}
