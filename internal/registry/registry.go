// Package registry holds the startup-time table mapping detector IDs to
// their descriptors and constructors. The table is validated once when it
// is built; nothing is resolved from strings at load time.
package registry

import (
	"context"
	"fmt"

	"detectd/pkg/types"
)

// LoadOptions carries advisory callbacks into a detector's load capability.
type LoadOptions struct {
	// OnProgress receives 0-100, monotonically non-decreasing. Correctness
	// must never depend on it.
	OnProgress func(pct int)
}

// Detector is the capability set every classifier artifact exposes. The
// core does not know how Predict is implemented internally.
type Detector interface {
	Load(ctx context.Context, opts LoadOptions) error
	Predict(ctx context.Context, img types.Image) (types.Prediction, error)
	Unload(ctx context.Context) error
	Loaded() bool
}

// Factory constructs a fresh, unloaded detector instance.
type Factory func() Detector

// Entry pairs a descriptor with its constructor.
type Entry struct {
	Descriptor types.DetectorDescriptor
	New        Factory
}

// Table is the validated ID -> entry mapping. Built once at startup, then
// read-only; safe for concurrent reads.
type Table struct {
	entries map[string]Entry
	order   []string
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Add validates and inserts an entry. Duplicate IDs and nil factories are
// rejected here, once, rather than on every load call.
func (t *Table) Add(desc types.DetectorDescriptor, factory Factory) error {
	if desc.ID == "" {
		return fmt.Errorf("detector descriptor missing id")
	}
	if factory == nil {
		return fmt.Errorf("detector %s: nil factory", desc.ID)
	}
	if _, dup := t.entries[desc.ID]; dup {
		return fmt.Errorf("duplicate detector id: %s", desc.ID)
	}
	t.entries[desc.ID] = Entry{Descriptor: desc, New: factory}
	t.order = append(t.order, desc.ID)
	return nil
}

// Get looks up an entry by ID.
func (t *Table) Get(id string) (Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// IDs returns registered IDs in registration order.
func (t *Table) IDs() []string {
	return append([]string(nil), t.order...)
}

// Descriptors returns descriptors in registration order.
func (t *Table) Descriptors() []types.DetectorDescriptor {
	out := make([]types.DetectorDescriptor, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id].Descriptor)
	}
	return out
}

// Len reports the number of registered detectors.
func (t *Table) Len() int { return len(t.order) }
