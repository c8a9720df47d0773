// Package distance provides the vector kernels used by the projection core:
// cosine similarity, L2 normalisation, half-precision decoding and int8
// scalar quantization.
//
// The float32 kernels are backed by the Gonum BLAS implementation, which
// dispatches to SIMD routines internally where the CPU supports them.
package distance

import (
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/cpuid/v2"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/blas/gonum"
)

// PrecisionType defines the data type used to store embedding values on disk.
type PrecisionType string

const (
	// Float32 represents single-precision floating-point numbers.
	Float32 PrecisionType = "float32"
	// Float16 represents half-precision floating-point numbers.
	Float16 PrecisionType = "float16"
	// Int8 stores values as symmetric scalar-quantized int8 codes.
	Int8 PrecisionType = "int8"
)

// ErrLengthMismatch is returned when two vectors do not share a dimension.
var ErrLengthMismatch = errors.New("vectors must have the same length")

// ParsePrecision validates a precision name. An empty name means Float32.
func ParsePrecision(s string) (PrecisionType, error) {
	switch PrecisionType(s) {
	case "", Float32:
		return Float32, nil
	case Float16:
		return Float16, nil
	case Int8:
		return Int8, nil
	default:
		return "", fmt.Errorf("precision '%s' not supported", s)
	}
}

// BytesPerValue returns the on-disk size of one value.
func (p PrecisionType) BytesPerValue() int {
	switch p {
	case Float16:
		return 2
	case Int8:
		return 1
	}
	return 4
}

var gonumEngine = gonum.Implementation{}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(gonumEngine.Snrm2(len(v), v, 1))
}

// NormalizeInto writes v / ||v|| into dst (as float64) and reports whether v had
// a finite non-zero norm. Otherwise zeros are written, so any dot product with
// the row is exactly 0.
func NormalizeInto(dst []float64, v []float32) bool {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		for i := range dst {
			dst[i] = 0
		}
		return false
	}
	for i, x := range v {
		dst[i] = float64(x) / n
	}
	return true
}

// CosineSimilarity returns the cosine similarity of v1 and v2, clamped to [-1, 1].
// If either vector has zero norm the similarity is defined as 0.
func CosineSimilarity(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, ErrLengthMismatch
	}
	n1, n2 := Norm(v1), Norm(v2)
	if n1 == 0 || n2 == 0 || math.IsInf(n1, 0) || math.IsInf(n2, 0) {
		return 0, nil
	}
	dot := float64(gonumEngine.Sdot(len(v1), v1, 1, v2, 1))
	return Clamp(dot / (n1 * n2)), nil
}

// Clamp bounds a similarity to [-1, 1]. Rounding in the dot product can push
// parallel vectors slightly outside the range. NaN maps to 0.
func Clamp(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// DecodeFloat16 expands half-precision bit patterns into dst.
func DecodeFloat16(dst []float32, src []uint16) {
	for i, b := range src {
		dst[i] = float16.Frombits(b).Float32()
	}
}

// MaxFloat16 is the largest finite half-precision value.
const MaxFloat16 = 65504

// ErrFloat16Overflow is returned when a value does not fit in half precision.
var ErrFloat16Overflow = errors.New("value overflows float16")

// EncodeFloat16 converts float32 values into half-precision bit patterns.
// Values rounding past MaxFloat16, and non-finite values, fail with
// ErrFloat16Overflow instead of becoming ±Inf.
func EncodeFloat16(dst []uint16, src []float32) error {
	for i, f := range src {
		h := float16.Fromfloat32(f)
		if h.IsInf(0) || h.IsNaN() {
			return fmt.Errorf("%w: %v at component %d", ErrFloat16Overflow, f, i)
		}
		dst[i] = h.Bits()
	}
	return nil
}

// EngineInfo describes the compute environment, logged once at startup.
// The CPU fields report what the host supports; the Gonum float32 kernels are
// pure Go and do not dispatch on them.
type EngineInfo struct {
	CPU         string
	Cores       int
	CPUFeatures []string
	Kernel      string
}

// DescribeEngine reports the host CPU and the kernel implementation in use.
func DescribeEngine() EngineInfo {
	return EngineInfo{
		CPU:         cpuid.CPU.BrandName,
		Cores:       cpuid.CPU.PhysicalCores,
		CPUFeatures: cpuid.CPU.FeatureSet(),
		Kernel:      "gonum blas (pure go)",
	}
}
