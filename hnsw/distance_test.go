package hnsw

import (
	"math"
	"math/rand"
	"testing"
)

func TestEuclideanDistanceOrdering(t *testing.T) {
	a := []float32{0, 0, 0}
	near := []float32{1, 0, 0}
	far := []float32{5, 0, 0}

	sNear := EuclideanDistance(a, near)
	sFar := EuclideanDistance(a, far)

	if sNear <= sFar {
		t.Fatalf("expected closer point to score higher: near=%v far=%v", sNear, sFar)
	}
	if sNear != -1 {
		t.Fatalf("expected -1 (negated squared distance), got %v", sNear)
	}
}

func TestInnerProductDistance(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	want := float32(1*4 + 2*5 + 3*6)
	if got := InnerProductDistance(a, b); got != want {
		t.Fatalf("InnerProductDistance = %v, want %v", got, want)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
		epsilon  float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0, 1e-4},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0, 1e-4},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0, 1e-4},
		{"45 degrees", []float32{1, 0}, []float32{1, 1}, float32(1 / math.Sqrt(2)), 1e-4},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0, 1e-4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if diff := got - tt.expected; diff > tt.epsilon || diff < -tt.epsilon {
				t.Errorf("CosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

// scalar and FMA paths must agree for inputs that are exactly representable
// in float32 with no rounding error (small integers): addition order does
// not matter when there is no rounding, so the two paths must produce
// identical bit patterns on such inputs, per the kernel contract.
func TestAcceleratedPathMatchesScalarOnExactInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 7, 8, 9, 16, 31, 64} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = float32(rng.Intn(7) - 3)
			b[i] = float32(rng.Intn(7) - 3)
		}

		if got, want := scalarDot(a, b), dotFMA(a, b); got != want {
			t.Errorf("n=%d: dotFMA = %v, scalarDot = %v", n, want, got)
		}
		if got, want := scalarSqDiffSum(a, b), sqDiffSumFMA(a, b); got != want {
			t.Errorf("n=%d: sqDiffSumFMA = %v, scalarSqDiffSum = %v", n, want, got)
		}
	}
}

func TestAcceleratedPathAgreesApproximatelyOnGeneralInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, n := range []int{3, 8, 17, 64, 129} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = rng.Float32()*2 - 1
			b[i] = rng.Float32()*2 - 1
		}

		scalar := scalarDot(a, b)
		accel := dotFMA(a, b)
		if diff := scalar - accel; diff > 1e-2 || diff < -1e-2 {
			t.Errorf("n=%d: dotFMA diverged from scalarDot beyond reassociation error: %v vs %v", n, accel, scalar)
		}
	}
}

func TestParseMetricRoundTrip(t *testing.T) {
	for _, m := range []Metric{Euclidean, InnerProduct, Cosine} {
		parsed, ok := ParseMetric(m.String())
		if !ok || parsed != m {
			t.Errorf("ParseMetric(%q) = %v, %v; want %v, true", m.String(), parsed, ok, m)
		}
	}
	if _, ok := ParseMetric("manhattan"); ok {
		t.Error("ParseMetric(\"manhattan\") should fail")
	}
}
