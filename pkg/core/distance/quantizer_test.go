package distance

import (
	"math"
	"math/rand"
	"testing"
)

func TestQuantizerTrainIgnoresOutliers(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	values := make([]float32, 10000)
	for i := range values {
		values[i] = r.Float32()*2 - 1
	}
	values[17] = 1000 // a single outlier

	var q Quantizer
	q.Train(values)
	if q.AbsMax <= 0.9 || q.AbsMax > 1 {
		t.Errorf("AbsMax = %f, want close to 1", q.AbsMax)
	}
}

func TestQuantizerRoundTrip(t *testing.T) {
	src := []float32{0, 0.5, -0.25, 1, -1, 2}
	q := Quantizer{AbsMax: 1}

	codes := make([]int8, len(src))
	q.QuantizeInto(codes, src)
	if codes[0] != 0 || codes[3] != 127 || codes[4] != -127 || codes[5] != 127 {
		t.Errorf("codes = %v", codes)
	}

	back := make([]float32, len(src))
	q.DequantizeInto(back, codes)
	for i, want := range []float32{0, 0.5, -0.25, 1, -1, 1} {
		if math.Abs(float64(back[i]-want)) > 1.0/127 {
			t.Errorf("value %d: got %f, want ~%f", i, back[i], want)
		}
	}
}

func TestQuantizerZeroRange(t *testing.T) {
	var q Quantizer
	q.Train([]float32{0, 0, 0})
	if q.AbsMax != 0 {
		t.Fatalf("AbsMax = %f, want 0", q.AbsMax)
	}
	codes := []int8{5, 5}
	q.QuantizeInto(codes, []float32{1, -1})
	if codes[0] != 0 || codes[1] != 0 {
		t.Errorf("codes = %v, want zeros", codes)
	}
}
