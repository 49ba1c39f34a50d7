package embedding

import (
	"math"
	"testing"
)

func TestBlobRoundTrip(t *testing.T) {
	cases := [][]float32{
		{},
		{0},
		{1.5, -2.25, 3.125},
		{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32},
	}

	// A full-width vector like the ones the default embedding model emits.
	wide := make([]float32, 768)
	for i := range wide {
		wide[i] = float32(i)*0.001 - 0.384
	}
	cases = append(cases, wide)

	for _, vec := range cases {
		blob := EncodeBlob(vec)
		if len(blob) != len(vec)*4 {
			t.Fatalf("blob length %d, want %d", len(blob), len(vec)*4)
		}

		decoded, err := DecodeBlob(blob)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(decoded) != len(vec) {
			t.Fatalf("decoded length %d, want %d", len(decoded), len(vec))
		}
		for i := range vec {
			if math.Abs(float64(decoded[i]-vec[i])) > 1e-4 {
				t.Fatalf("coordinate %d: got %v, want %v", i, decoded[i], vec[i])
			}
		}
	}
}

func TestDecodeBlobRejectsBadLength(t *testing.T) {
	if _, err := DecodeBlob([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for blob length not divisible by 4")
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		v := []float32{1, 2, 3}
		if sim := CosineSimilarity(v, v); math.Abs(sim-1.0) > 1e-6 {
			t.Fatalf("expected similarity 1.0, got %v", sim)
		}
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(sim) > 1e-6 {
			t.Fatalf("expected similarity 0, got %v", sim)
		}
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		if sim := CosineSimilarity([]float32{1}, []float32{1, 2}); sim != 0 {
			t.Fatalf("expected 0 for mismatched lengths, got %v", sim)
		}
	})
}
