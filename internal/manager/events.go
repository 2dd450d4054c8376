package manager

// Event represents a manager lifecycle or run event.
// Minimal and stable: name + detector/run IDs and optional fields.
type Event struct {
	Name       string
	DetectorID string
	RunID      string
	Fields     map[string]any
}

// Event names emitted by the manager.
const (
	EventStatusChange   = "status_change"
	EventLoadProgress   = "load_progress"
	EventLoadDone       = "load_done"
	EventLoadFailed     = "load_failed"
	EventUnloadDone     = "unload_done"
	EventMemoryPressure = "memory_pressure"
	EventRunStart       = "run_start"
	EventModelStart     = "model_start"
	EventModelComplete  = "model_complete"
	EventPartialVerdict = "partial_verdict"
	EventRunDone        = "run_done"
)

// EventPublisher receives events from the manager. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
