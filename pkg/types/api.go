package types

// AnalyzeRequest is the payload for POST /analyze.
type AnalyzeRequest struct {
	// Base64-encoded image payload.
	ImageBase64 string `json:"image_base64"`
	// MIME type of the image, e.g. image/png.
	// example: image/png
	MIME string `json:"mime,omitempty" example:"image/png"`
	// Detector IDs to run. Empty means every registered detector.
	Detectors []string `json:"detectors,omitempty"`
	// Run detectors concurrently (default) or one at a time.
	Parallel *bool `json:"parallel,omitempty"`
	// Cap on simultaneously running detectors. 0 uses the server default.
	// example: 4
	MaxConcurrency int `json:"max_concurrency,omitempty" example:"4"`
	// Per-detector predict budget in milliseconds. 0 uses the server default.
	// example: 15000
	TimeoutMs int `json:"timeout_ms,omitempty" example:"15000"`
}

// DetectorsResponse wraps the list returned by GET /detectors.
type DetectorsResponse struct {
	Detectors []DetectorDescriptor `json:"detectors"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: detector not found: freq-cnn-v2
	Error string `json:"error" example:"detector not found: freq-cnn-v2"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// DetectorStatus summarizes one registered detector for GET /status.
type DetectorStatus struct {
	// Detector ID.
	// example: freq-cnn-v2
	ID string `json:"id" example:"freq-cnn-v2"`
	// Lifecycle state: unloaded, loading, ready, error.
	// example: ready
	State string `json:"state" example:"ready"`
	// Estimated resident memory in MB when loaded.
	// example: 350
	EstimatedMemoryMB int `json:"estimated_memory_mb" example:"350"`
	// Unix seconds of the load completion, 0 when not loaded.
	LoadedAt int64 `json:"loaded_at_unix,omitempty"`
	// Unix seconds of the last predict dispatched to this detector.
	LastUsed int64 `json:"last_used_unix,omitempty"`
	// Last load error, if the detector is in the error state.
	LastError string `json:"last_error,omitempty"`
}

// MemoryStats reports the lifecycle manager's memory ledger.
type MemoryStats struct {
	// Sum of estimates for ready detectors, MB.
	// example: 1200
	UsedMB int `json:"used_mb" example:"1200"`
	// Pressure warning threshold, MB.
	// example: 2048
	ThresholdMB int `json:"threshold_mb" example:"2048"`
	// True while UsedMB exceeds ThresholdMB.
	Pressure bool `json:"pressure"`
	// Number of ready detectors contributing to UsedMB.
	ReadyCount int `json:"ready_count"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Per-detector lifecycle states.
	Detectors []DetectorStatus `json:"detectors"`
	// Memory ledger snapshot.
	Memory MemoryStats `json:"memory"`
	// Number of detectors currently loading.
	LoadsInProgress int `json:"loads_in_progress"`
	// Total successful loads since start.
	LoadsTotal uint64 `json:"loads_total"`
	// Total unloads since start.
	UnloadsTotal uint64 `json:"unloads_total"`
	// Total inference runs since start.
	RunsTotal uint64 `json:"runs_total"`
	// Uptime in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// CacheEntryInfo describes one cached artifact for GET /cache/stats.
type CacheEntryInfo struct {
	// Cache key, normally the detector ID.
	Key string `json:"key"`
	// Blob size in bytes.
	SizeBytes int64 `json:"size_bytes"`
	// Unix seconds of the last read or write.
	LastAccessUnix int64 `json:"last_access_unix"`
}

// CacheStats is returned by GET /cache/stats.
type CacheStats struct {
	// Sum of all entry sizes in bytes.
	TotalSizeBytes int64 `json:"total_size_bytes"`
	// Number of entries.
	EntryCount int `json:"entry_count"`
	// Configured maximum, bytes.
	MaxSizeBytes int64 `json:"max_size_bytes"`
	// True when the persistent store is unavailable and the cache is a
	// pass-through.
	Degraded bool `json:"degraded"`
	// Per-entry details.
	Entries []CacheEntryInfo `json:"entries,omitempty"`
}
