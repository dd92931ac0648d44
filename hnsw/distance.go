// Copyright (c) 2024 LevelGraph Go Contributors
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following
// conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Package hnsw implements the Hierarchical Navigable Small World graph
// index: construction, kANN search, deletion, and the distance kernels
// and node storage it is built on.
//
// Reference: "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs" by Malkov & Yashunin.
package hnsw

import (
	"math"

	"golang.org/x/sys/cpu"
)

// Metric identifies which distance kernel an index uses. It is selected at
// index-create time and never changes for the lifetime of the index.
type Metric uint8

const (
	// Euclidean orders by negated squared L2 distance (larger is closer).
	Euclidean Metric = iota
	// InnerProduct orders by raw dot product (larger is closer).
	InnerProduct
	// Cosine orders by cosine similarity (larger is closer).
	Cosine
)

// String returns the wire/metadata name of the metric.
func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case InnerProduct:
		return "inner_product"
	case Cosine:
		return "cosine"
	default:
		return "unknown"
	}
}

// ParseMetric resolves a wire/metadata name back to a Metric.
func ParseMetric(name string) (Metric, bool) {
	switch name {
	case "euclidean":
		return Euclidean, true
	case "inner_product":
		return InnerProduct, true
	case "cosine":
		return Cosine, true
	default:
		return 0, false
	}
}

// DistanceFunc computes an ordering score between two equal-length vectors.
// Larger return values mean "closer" — this is the opposite convention of a
// raw distance, chosen so that a max-heap candidate store (see heap.go) can
// be used uniformly across all three metrics.
type DistanceFunc func(a, b []float32) float32

// hasFMA reports whether the accelerated 8-lane path should be used. It is
// evaluated once at package init and cached, matching the general shape of
// runtime dispatch seen throughout the corpus (feature probed once, result
// reused on every hot-path call).
var hasFMA = cpu.X86.HasAVX2 && cpu.X86.HasFMA

// dot computes the dot product of a and b, which must have equal length.
// It dispatches to an accelerated path when the CPU advertises 256-bit FMA;
// scalarDot is the portable fallback used otherwise and for the tail when n
// is not a multiple of the lane width.
func dot(a, b []float32) float32 {
	if hasFMA && len(a) >= 8 {
		return dotFMA(a, b)
	}
	return scalarDot(a, b)
}

// scalarDot is the portable reference implementation: a single accumulator,
// no unrolling. Used directly on unaccelerated CPUs and as the tail loop
// for the accelerated path.
func scalarDot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// dotFMA processes 8 lanes per iteration using four independent
// accumulators, which hides FMA latency by giving the scheduler
// independent dependency chains instead of one long one. The loop shape
// mirrors a 256-bit/8-lane FMA kernel; a residual tail (n % 8 != 0) is
// handled by scalarDot on the remaining elements. On inputs that are
// exactly representable in float32 arithmetic with no rounding (e.g. small
// integers), this produces bit-identical results to scalarDot because
// addition order does not matter when there is no rounding error; for
// general inputs the two paths agree only up to floating-point
// reassociation error, which is expected and not tested for bit equality.
func dotFMA(a, b []float32) float32 {
	n := len(a)
	lanes := n - n%8

	var acc0, acc1, acc2, acc3 float32
	for i := 0; i < lanes; i += 8 {
		acc0 += a[i+0]*b[i+0] + a[i+4]*b[i+4]
		acc1 += a[i+1]*b[i+1] + a[i+5]*b[i+5]
		acc2 += a[i+2]*b[i+2] + a[i+6]*b[i+6]
		acc3 += a[i+3]*b[i+3] + a[i+7]*b[i+7]
	}

	sum := (acc0 + acc1) + (acc2 + acc3)
	if lanes < n {
		sum += scalarDot(a[lanes:], b[lanes:])
	}
	return sum
}

// sqDiffSum computes Σ(a[i]-b[i])^2, dispatching the same way dot does.
func sqDiffSum(a, b []float32) float32 {
	if hasFMA && len(a) >= 8 {
		return sqDiffSumFMA(a, b)
	}
	return scalarSqDiffSum(a, b)
}

func scalarSqDiffSum(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func sqDiffSumFMA(a, b []float32) float32 {
	n := len(a)
	lanes := n - n%8

	var acc0, acc1, acc2, acc3 float32
	for i := 0; i < lanes; i += 8 {
		d0, d4 := a[i+0]-b[i+0], a[i+4]-b[i+4]
		d1, d5 := a[i+1]-b[i+1], a[i+5]-b[i+5]
		d2, d6 := a[i+2]-b[i+2], a[i+6]-b[i+6]
		d3, d7 := a[i+3]-b[i+3], a[i+7]-b[i+7]
		acc0 += d0*d0 + d4*d4
		acc1 += d1*d1 + d5*d5
		acc2 += d2*d2 + d6*d6
		acc3 += d3*d3 + d7*d7
	}

	sum := (acc0 + acc1) + (acc2 + acc3)
	if lanes < n {
		sum += scalarSqDiffSum(a[lanes:], b[lanes:])
	}
	return sum
}

// EuclideanDistance returns the negated squared L2 distance between a and
// b: ordering-preserving and cheaper than computing the square root since
// only relative order matters to the graph engine.
func EuclideanDistance(a, b []float32) float32 {
	return -sqDiffSum(a, b)
}

// InnerProductDistance returns the raw inner product Σ a[i]*b[i].
func InnerProductDistance(a, b []float32) float32 {
	return dot(a, b)
}

// CosineDistance returns the cosine similarity Σa·b / (‖a‖‖b‖). Callers
// that pre-normalize vectors may use InnerProductDistance directly instead.
func CosineDistance(a, b []float32) float32 {
	d := dot(a, b)
	na := dot(a, a)
	nb := dot(b, b)
	denom := float32(math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
	if denom == 0 {
		return 0
	}
	return d / denom
}

// DistanceFor returns the kernel implementing the given metric.
func DistanceFor(m Metric) DistanceFunc {
	switch m {
	case Euclidean:
		return EuclideanDistance
	case InnerProduct:
		return InnerProductDistance
	case Cosine:
		return CosineDistance
	default:
		return CosineDistance
	}
}
