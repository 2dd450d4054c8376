package types

import "time"

// Verdict is the five-way classification of an image.
type Verdict string

const (
	VerdictAIGenerated  Verdict = "ai_generated"
	VerdictLikelyAI     Verdict = "likely_ai"
	VerdictInconclusive Verdict = "inconclusive"
	VerdictLikelyReal   Verdict = "likely_real"
	VerdictHumanCreated Verdict = "human_created"
)

// Category groups detectors by the kind of evidence they inspect.
type Category string

const (
	CategoryFullImage Category = "full_image"
	CategoryRegion    Category = "region"
	CategoryForensic  Category = "forensic"
)

// ConsensusStrength summarizes how dominant the majority vote bucket is.
type ConsensusStrength string

const (
	ConsensusStrong   ConsensusStrength = "strong"
	ConsensusModerate ConsensusStrength = "moderate"
	ConsensusWeak     ConsensusStrength = "weak"
)

// DetectorDescriptor is the static metadata for one registered detector.
// Immutable once registered.
type DetectorDescriptor struct {
	// Stable identifier for the detector.
	// example: freq-cnn-v2
	ID string `json:"id" yaml:"id" example:"freq-cnn-v2"`
	// Human-friendly name.
	// example: Frequency CNN v2
	DisplayName string `json:"display_name" yaml:"display_name" example:"Frequency CNN v2"`
	// Estimated resident memory once loaded, in MB.
	// example: 350
	EstimatedMemoryMB int `json:"estimated_memory_mb" yaml:"estimated_memory_mb" example:"350"`
	// Evidence category the detector operates on.
	// example: full_image
	Category Category `json:"category" yaml:"category" example:"full_image"`
	// Reported validation accuracy in percent, 0 when unknown.
	// example: 94.2
	Accuracy float64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty" example:"94.2"`
	// Provenance or training-set note, free text.
	Provenance string `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	// URL or path of the serialized model artifact.
	ArtifactURL string `json:"artifact_url" yaml:"artifact_url"`
	// Dispatch priority hint: lower values dispatch first. Fast detectors
	// get low values so partial verdicts surface sooner. Has no effect on
	// the final aggregate.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty" example:"10"`
}

// Image is the input handed to detectors. The orchestrator treats the
// payload as opaque bytes; adapters do their own decoding.
type Image struct {
	Data []byte `json:"-"`
	MIME string `json:"mime,omitempty"`
}

// Prediction is the raw output of one detector's predict capability.
// AIProbability is strictly 0-100 at this boundary; adapters for models
// emitting 0-1 scores normalize before returning.
type Prediction struct {
	AIProbability float64 `json:"ai_probability"`
	Verdict       Verdict `json:"verdict"`
	Confidence    float64 `json:"confidence"`
}

// ModelResult is the per-detector outcome of one inference run.
// Immutable once produced.
type ModelResult struct {
	// ID of the detector that produced this result.
	// example: freq-cnn-v2
	ModelID string `json:"model_id" example:"freq-cnn-v2"`
	// Probability that the image is AI generated, 0-100.
	// example: 87.5
	AIProbability float64 `json:"ai_probability" example:"87.5"`
	// Per-detector verdict derived from the probability.
	Verdict Verdict `json:"verdict"`
	// Detector-reported confidence, 0-100.
	// example: 75
	Confidence float64 `json:"confidence" example:"75"`
	// Wall time spent in predict, milliseconds.
	// example: 120
	InferenceTimeMs int64 `json:"inference_time_ms" example:"120"`
	// Whether predict completed without error.
	Success bool `json:"success"`
	// Error message when Success is false.
	Error string `json:"error,omitempty"`
}

// VoteCounts buckets valid results by their individual leaning.
type VoteCounts struct {
	AI     int `json:"ai"`
	Real   int `json:"real"`
	Unsure int `json:"unsure"`
}

// AggregatedResult is the ensemble-level outcome of a run. Exactly one
// final result is produced per run; zero or more preliminary variants
// may be emitted earlier with Preliminary set.
type AggregatedResult struct {
	// Run correlation ID.
	RunID string `json:"run_id,omitempty"`
	// Ensemble verdict from the five-way thresholding.
	Verdict Verdict `json:"verdict"`
	// Ensemble confidence, 0-100.
	Confidence float64 `json:"confidence"`
	// Mean AI probability over valid results, 0-100.
	AIProbability float64 `json:"ai_probability"`
	// Vote buckets over valid results.
	Votes VoteCounts `json:"votes"`
	// Successful per-detector results; failed detectors appear in Errors.
	ModelResults []ModelResult `json:"model_results"`
	// Dominance of the majority vote bucket.
	ConsensusStrength ConsensusStrength `json:"consensus_strength"`
	// Total run wall time, milliseconds.
	TotalTimeMs int64 `json:"total_time_ms"`
	// IDs of detectors that failed, one entry per failure.
	Errors []string `json:"errors,omitempty"`
	// True for early results emitted before all detectors finished.
	Preliminary bool `json:"preliminary,omitempty"`
	// Completion time of the run.
	CompletedAt time.Time `json:"completed_at"`
}
