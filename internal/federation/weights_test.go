package federation

import (
	"math"
	"testing"
)

func TestGoldenWeights(t *testing.T) {
	want := []float64{1.0, 0.618, 0.382, 0.236}
	for pos, expected := range want {
		got := Weight(DecayGolden, pos)
		if math.Abs(got-expected) > 1e-3 {
			t.Fatalf("golden weight at position %d: got %v, want %v", pos, got, expected)
		}
	}
}

func TestExponentialWeights(t *testing.T) {
	want := []float64{1.0, 0.5, 0.25, 0.125}
	for pos, expected := range want {
		got := Weight(DecayExponential, pos)
		if math.Abs(got-expected) > 1e-9 {
			t.Fatalf("exponential weight at position %d: got %v, want %v", pos, got, expected)
		}
	}
}

func TestLinearWeights(t *testing.T) {
	want := []float64{1.0, 0.75, 0.5, 0.25}
	for pos, expected := range want {
		got := Weight(DecayLinear, pos)
		if math.Abs(got-expected) > 1e-9 {
			t.Fatalf("linear weight at position %d: got %v, want %v", pos, got, expected)
		}
	}
}

func TestValidateRemoteCount(t *testing.T) {
	for n := 0; n <= 3; n++ {
		if err := ValidateRemoteCount(n); err != nil {
			t.Fatalf("count %d should be valid: %v", n, err)
		}
	}
	if err := ValidateRemoteCount(4); err == nil {
		t.Fatal("count 4 should be invalid")
	}
}

func TestMerge(t *testing.T) {
	local := []Scored{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.5},
	}
	remotes := [][]Scored{
		{{ID: "a", Score: 0.8}, {ID: "c", Score: 0.7}},
	}
	weights := Weights(DecayGolden, 1)

	merged := Merge(local, remotes, weights)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged results, got %d", len(merged))
	}

	// a: 0.9 + 0.8*0.618 = 1.394; c: 0.7*0.618 = 0.433; b: 0.5
	if merged[0].ID != "a" {
		t.Fatalf("expected a first, got %s", merged[0].ID)
	}
	if math.Abs(merged[0].Score-1.3944) > 1e-3 {
		t.Fatalf("combined score for a: got %v", merged[0].Score)
	}
	if merged[1].ID != "b" || merged[2].ID != "c" {
		t.Fatalf("unexpected ranking: %s, %s", merged[1].ID, merged[2].ID)
	}
}
