package distance

import (
	"log/slog"
	"math"
	"sort"
)

// Quantizer maps float32 values to int8 symmetrically around zero.
// The range is learned from data so that [-AbsMax, AbsMax] covers [-127, 127].
type Quantizer struct {
	AbsMax float32
}

// quantile of |v| used as AbsMax; the top 0.1% of values are clipped.
const quantizerQuantile = 0.999

// Train sets AbsMax from the 99.9th percentile of |v| over values.
// Zeros are ignored so that absent rows do not shrink the range.
func (q *Quantizer) Train(values []float32) {
	abs := make([]float32, 0, len(values))
	for _, v := range values {
		if v != 0 {
			abs = append(abs, float32(math.Abs(float64(v))))
		}
	}
	if len(abs) == 0 {
		q.AbsMax = 0
		return
	}
	sort.Slice(abs, func(i, j int) bool { return abs[i] < abs[j] })

	idx := int(float64(len(abs)) * quantizerQuantile)
	if idx >= len(abs) {
		idx = len(abs) - 1
	}
	q.AbsMax = abs[idx]
	slog.Debug("[QUANTIZER] Trained", "values", len(abs), "abs_max", q.AbsMax)
}

// QuantizeInto writes the int8 codes of src into dst.
func (q *Quantizer) QuantizeInto(dst []int8, src []float32) {
	if q.AbsMax == 0 {
		clear(dst)
		return
	}
	for i, v := range src {
		scaled := float64(v/q.AbsMax) * 127
		if scaled > 127 {
			scaled = 127
		} else if scaled < -127 {
			scaled = -127
		}
		dst[i] = int8(math.Round(scaled))
	}
}

// DequantizeInto writes the approximate float32 values of src into dst.
func (q *Quantizer) DequantizeInto(dst []float32, src []int8) {
	for i, c := range src {
		dst[i] = float32(c) / 127 * q.AbsMax
	}
}
