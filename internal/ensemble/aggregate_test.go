package ensemble

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"detectd/pkg/types"
)

func ok(id string, prob, conf float64) types.ModelResult {
	return types.ModelResult{ModelID: id, AIProbability: prob, Confidence: conf, Success: true}
}

func failed(id string) types.ModelResult {
	return types.ModelResult{ModelID: id, Success: false, Error: "predict failed"}
}

func TestVerdictThresholds(t *testing.T) {
	cases := []struct {
		p    float64
		want types.Verdict
	}{
		{95, types.VerdictAIGenerated},
		{70, types.VerdictAIGenerated},
		{69.9, types.VerdictLikelyAI},
		{55, types.VerdictLikelyAI},
		{54.9, types.VerdictInconclusive},
		{45, types.VerdictInconclusive},
		{44.9, types.VerdictLikelyReal},
		{30, types.VerdictLikelyReal},
		{29.9, types.VerdictHumanCreated},
		{0, types.VerdictHumanCreated},
	}
	for _, c := range cases {
		if got := VerdictFor(c.p); got != c.want {
			t.Fatalf("VerdictFor(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestAggregateBasics(t *testing.T) {
	agg, err := Aggregate([]types.ModelResult{
		ok("a", 80, 70),
		ok("b", 90, 80),
		ok("c", 20, 60),
		failed("d"),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	wantMean := (80.0 + 90.0 + 20.0) / 3.0
	if math.Abs(agg.AIProbability-wantMean) > 1e-9 {
		t.Fatalf("mean = %v, want %v", agg.AIProbability, wantMean)
	}
	if agg.Votes != (types.VoteCounts{AI: 2, Real: 1}) {
		t.Fatalf("votes = %+v", agg.Votes)
	}
	if agg.Verdict != types.VerdictLikelyAI {
		t.Fatalf("verdict = %v", agg.Verdict)
	}
	if math.Abs(agg.Confidence-math.Abs(wantMean-50)*2) > 1e-9 {
		t.Fatalf("confidence = %v", agg.Confidence)
	}
	if agg.ConsensusStrength != types.ConsensusModerate {
		t.Fatalf("consensus = %v (2/3 share should be moderate)", agg.ConsensusStrength)
	}
	if len(agg.Errors) != 1 || agg.Errors[0] != "d" {
		t.Fatalf("errors = %v", agg.Errors)
	}
	if len(agg.ModelResults) != 3 {
		t.Fatalf("only successful results belong in ModelResults, got %d", len(agg.ModelResults))
	}
	for _, r := range agg.ModelResults {
		if !r.Success {
			t.Fatalf("failed result %s leaked into ModelResults", r.ModelID)
		}
	}
}

func TestAggregateVoteBucketBoundaries(t *testing.T) {
	// Exactly 65 and exactly 35 are unsure; strictly beyond is a vote.
	agg, err := Aggregate([]types.ModelResult{
		ok("a", 65, 50),
		ok("b", 35, 50),
		ok("c", 65.1, 50),
		ok("d", 34.9, 50),
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.Votes != (types.VoteCounts{AI: 1, Real: 1, Unsure: 2}) {
		t.Fatalf("votes = %+v", agg.Votes)
	}
}

func TestAggregateOrderIndependence(t *testing.T) {
	base := []types.ModelResult{
		ok("a", 82, 71),
		ok("b", 91, 88),
		ok("c", 14, 66),
		ok("d", 50, 40),
		failed("e"),
	}
	want, err := Aggregate(base)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		perm := make([]types.ModelResult, len(base))
		for j, k := range rng.Perm(len(base)) {
			perm[j] = base[k]
		}
		got, err := Aggregate(perm)
		if err != nil {
			t.Fatalf("Aggregate(perm): %v", err)
		}
		if got.Verdict != want.Verdict || got.Votes != want.Votes ||
			math.Abs(got.Confidence-want.Confidence) > 1e-9 ||
			math.Abs(got.AIProbability-want.AIProbability) > 1e-9 ||
			got.ConsensusStrength != want.ConsensusStrength {
			t.Fatalf("permutation %d changed the aggregate: %+v vs %+v", i, got, want)
		}
	}
}

func TestAggregateAllFailed(t *testing.T) {
	agg, err := Aggregate([]types.ModelResult{failed("a"), failed("b")})
	if !errors.Is(err, ErrNoValidResults) {
		t.Fatalf("expected ErrNoValidResults, got %v", err)
	}
	if len(agg.Errors) != 2 {
		t.Fatalf("errors = %v", agg.Errors)
	}
}

func TestConsensusStrength(t *testing.T) {
	// 4/5 ai votes: strong.
	agg, _ := Aggregate([]types.ModelResult{
		ok("a", 80, 50), ok("b", 85, 50), ok("c", 90, 50), ok("d", 95, 50), ok("e", 50, 50),
	})
	if agg.ConsensusStrength != types.ConsensusStrong {
		t.Fatalf("4/5 share should be strong, got %v", agg.ConsensusStrength)
	}
	// 2 ai, 2 real, 1 unsure: weak.
	agg, _ = Aggregate([]types.ModelResult{
		ok("a", 80, 50), ok("b", 85, 50), ok("c", 10, 50), ok("d", 15, 50), ok("e", 50, 50),
	})
	if agg.ConsensusStrength != types.ConsensusWeak {
		t.Fatalf("2/5 share should be weak, got %v", agg.ConsensusStrength)
	}
}

func TestPreliminary_UnanimousAIEmits(t *testing.T) {
	agg, emit := Preliminary([]types.ModelResult{ok("a", 90, 80), ok("b", 92, 84)})
	if !emit {
		t.Fatalf("unanimous high-confidence ai votes must emit")
	}
	if !agg.Preliminary {
		t.Fatalf("preliminary flag not set")
	}
	if agg.Verdict != types.VerdictAIGenerated {
		t.Fatalf("verdict = %v", agg.Verdict)
	}
}

func TestPreliminary_SplitSuppressesEntirely(t *testing.T) {
	// High confidence on both sides must still suppress: a split verdict
	// shown early could be reversed by slower detectors.
	if _, emit := Preliminary([]types.ModelResult{ok("a", 80, 95), ok("b", 20, 95)}); emit {
		t.Fatalf("split votes must never emit a preliminary verdict")
	}
	if _, emit := Preliminary([]types.ModelResult{ok("a", 20, 95), ok("b", 15, 95), ok("c", 80, 95)}); emit {
		t.Fatalf("2 real + 1 ai must never emit")
	}
}

func TestPreliminary_GateConditions(t *testing.T) {
	// Single result: too few.
	if _, emit := Preliminary([]types.ModelResult{ok("a", 90, 99)}); emit {
		t.Fatalf("one result must not emit")
	}
	// Unanimous but low confidence.
	if _, emit := Preliminary([]types.ModelResult{ok("a", 90, 60), ok("b", 92, 60)}); emit {
		t.Fatalf("low average confidence must not emit")
	}
	// Unsure bucket is never unanimous.
	if _, emit := Preliminary([]types.ModelResult{ok("a", 50, 99), ok("b", 51, 99)}); emit {
		t.Fatalf("unsure votes must not emit")
	}
	// Failed results do not count as valid.
	if _, emit := Preliminary([]types.ModelResult{ok("a", 90, 99), failed("b")}); emit {
		t.Fatalf("one valid + one failed must not emit")
	}
	// Unanimous real emits too.
	if _, emit := Preliminary([]types.ModelResult{ok("a", 5, 90), ok("b", 10, 85)}); !emit {
		t.Fatalf("unanimous real votes must emit")
	}
}
