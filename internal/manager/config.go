package manager

import (
	"time"

	"github.com/rs/zerolog"

	"detectd/internal/registry"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMemoryThresholdMB = 2048
	defaultLoadConcurrency   = 2
	defaultRunConcurrency    = 4
	defaultPredictTimeout    = 30 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Table is the validated startup registry. May be nil; detectors can
	// also be registered dynamically via Register.
	Table *registry.Table
	// MemoryThresholdMB is the ledger level above which pressure warnings
	// are emitted. Non-fatal: loads are never refused on memory grounds.
	MemoryThresholdMB int
	// LoadConcurrency caps simultaneous loads in LoadMany. Loading is
	// download-heavy, so this is a separate knob from run concurrency.
	LoadConcurrency int
	// RunConcurrency caps simultaneous predict calls in Analyze.
	RunConcurrency int
	// PredictTimeout is the per-detector budget inside one run.
	PredictTimeout time.Duration
	Publisher      EventPublisher
	Logger         zerolog.Logger
}

// NewWithConfig constructs a Manager from Config.
func NewWithConfig(cfg Config) *Manager {
	m := &Manager{
		instances: make(map[string]*instance),
		publisher: cfg.Publisher,
		log:       cfg.Logger,
		startTime: time.Now(),
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	m.memoryThresholdMB = cfg.MemoryThresholdMB
	if m.memoryThresholdMB <= 0 {
		m.memoryThresholdMB = defaultMemoryThresholdMB
	}
	m.loadConcurrency = cfg.LoadConcurrency
	if m.loadConcurrency <= 0 {
		m.loadConcurrency = defaultLoadConcurrency
	}
	m.runConcurrency = cfg.RunConcurrency
	if m.runConcurrency <= 0 {
		m.runConcurrency = defaultRunConcurrency
	}
	m.predictTimeout = cfg.PredictTimeout
	if m.predictTimeout <= 0 {
		m.predictTimeout = defaultPredictTimeout
	}
	if cfg.Table != nil {
		for _, id := range cfg.Table.IDs() {
			e, _ := cfg.Table.Get(id)
			m.instances[id] = &instance{entry: e, state: StateUnloaded}
			m.order = append(m.order, id)
		}
	}
	return m
}
