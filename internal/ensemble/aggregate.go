// Package ensemble implements the vote counting and verdict derivation
// that folds individual detector results into one classification. All
// functions are pure and order-independent over their input set.
package ensemble

import (
	"errors"
	"math"
	"time"

	"detectd/pkg/types"
)

// Vote bucket thresholds over a detector's AI probability (0-100).
const (
	voteAIAbove   = 65.0
	voteRealBelow = 35.0
)

// Preliminary emission gate.
const (
	preliminaryMinResults    = 2
	preliminaryMinConfidence = 75.0
)

// Consensus strength cutoffs: dominant bucket share of valid results.
const (
	consensusStrongShare   = 0.80
	consensusModerateShare = 0.60
)

// ErrNoValidResults indicates every detector in a run failed.
var ErrNoValidResults = errors.New("no valid results: all detectors failed")

// VerdictFor maps an ensemble AI probability (0-100) to the five-way
// verdict scale.
func VerdictFor(p float64) types.Verdict {
	switch {
	case p >= 70:
		return types.VerdictAIGenerated
	case p >= 55:
		return types.VerdictLikelyAI
	case p >= 45:
		return types.VerdictInconclusive
	case p >= 30:
		return types.VerdictLikelyReal
	default:
		return types.VerdictHumanCreated
	}
}

type bucket int

const (
	bucketAI bucket = iota
	bucketReal
	bucketUnsure
)

func bucketFor(p float64) bucket {
	switch {
	case p > voteAIAbove:
		return bucketAI
	case p < voteRealBelow:
		return bucketReal
	default:
		return bucketUnsure
	}
}

// Aggregate folds a set of per-detector results into the ensemble outcome.
// ModelResults carries the successful results only; failed detectors are
// reported by ID through Errors and contribute nothing to the verdict.
// The output depends only on the multiset of inputs, never their order.
func Aggregate(results []types.ModelResult) (types.AggregatedResult, error) {
	agg := types.AggregatedResult{
		ModelResults: make([]types.ModelResult, 0, len(results)),
		CompletedAt:  time.Now(),
	}
	var sum float64
	valid := 0
	for _, r := range results {
		if !r.Success {
			agg.Errors = append(agg.Errors, r.ModelID)
			continue
		}
		agg.ModelResults = append(agg.ModelResults, r)
		valid++
		sum += r.AIProbability
		switch bucketFor(r.AIProbability) {
		case bucketAI:
			agg.Votes.AI++
		case bucketReal:
			agg.Votes.Real++
		default:
			agg.Votes.Unsure++
		}
	}
	if valid == 0 {
		return agg, ErrNoValidResults
	}
	agg.AIProbability = sum / float64(valid)
	agg.Verdict = VerdictFor(agg.AIProbability)
	agg.Confidence = math.Abs(agg.AIProbability-50) * 2
	agg.ConsensusStrength = consensusFor(agg.Votes, valid)
	return agg, nil
}

func consensusFor(v types.VoteCounts, valid int) types.ConsensusStrength {
	dominant := v.AI
	if v.Real > dominant {
		dominant = v.Real
	}
	if v.Unsure > dominant {
		dominant = v.Unsure
	}
	share := float64(dominant) / float64(valid)
	switch {
	case share >= consensusStrongShare:
		return types.ConsensusStrong
	case share >= consensusModerateShare:
		return types.ConsensusModerate
	default:
		return types.ConsensusWeak
	}
}

// Preliminary recomputes over the results received so far and reports
// whether an early verdict may be surfaced. The gate is strict: at least
// two valid results, a unanimous ai or real vote bucket (any split
// suppresses emission entirely), and average detector confidence above
// the threshold. Slower detectors can still revise the final verdict, so
// anything weaker must never reach the user early.
func Preliminary(results []types.ModelResult) (types.AggregatedResult, bool) {
	valid := 0
	var confSum float64
	first := bucketUnsure
	unanimous := true
	for _, r := range results {
		if !r.Success {
			continue
		}
		b := bucketFor(r.AIProbability)
		if b == bucketUnsure {
			unanimous = false
		} else if valid == 0 {
			first = b
		} else if b != first {
			unanimous = false
		}
		valid++
		confSum += r.Confidence
	}
	if valid < preliminaryMinResults || !unanimous || first == bucketUnsure {
		return types.AggregatedResult{}, false
	}
	if confSum/float64(valid) <= preliminaryMinConfidence {
		return types.AggregatedResult{}, false
	}
	agg, err := Aggregate(results)
	if err != nil {
		return types.AggregatedResult{}, false
	}
	agg.Preliminary = true
	return agg, true
}
