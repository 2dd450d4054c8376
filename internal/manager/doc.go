// Package manager provides detector lifecycle and inference coordination
// for the ensemble. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: Config and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (DetectorState, instance, Handle).
//   - errors.go: error types and helpers (IsNotFound, IsConcurrentLoad, ...).
//   - events.go: EventPublisher interface and event names.
//   - eventpub_memory.go: in-memory publisher used by tests.
//   - load.go: single and batch loading with the bounded work queue.
//   - unload.go: idempotent unload and the memory ledger release path.
//   - run.go: Analyze, the inference orchestrator for one run.
//   - status_report.go: Status/MemoryStats reporting helpers.
//
// External packages should treat this package as the orchestration layer
// and use public methods only (NewWithConfig, Register, Load, LoadMany,
// Unload, Analyze, Status). Internal types are subject to change.
package manager
