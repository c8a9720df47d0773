package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/sanonone/dygetviz/pkg/core/distance"
	"github.com/sanonone/dygetviz/pkg/core/tensor"
)

func sampleDataset(t *testing.T) *tensor.Dataset {
	t.Helper()
	z, err := tensor.EmbeddingsFromRows([][][]float32{
		{{1, 0.5, -2}, {0, 0, 0}, {0.25, 4, 1}},
		{{1, 1, 1}, {0.125, 0, -1}, {0, 0, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	nodes, _ := tensor.NewNodeIndex([]string{"a", "b", "c"})
	return &tensor.Dataset{
		Name:          "sample",
		Nodes:         nodes,
		SnapshotNames: []string{"jan", "feb"},
		Z:             z,
		P:             tensor.PresenceFromNonZero(z),
		Annotations:   map[string]string{"a": "Fraud"},
	}
}

func assertSameDataset(t *testing.T, want, got *tensor.Dataset) {
	t.Helper()
	if got.Name != want.Name || got.Nodes.Len() != want.Nodes.Len() {
		t.Fatalf("metadata differs: %q/%d vs %q/%d", got.Name, got.Nodes.Len(), want.Name, want.Nodes.Len())
	}
	if got.SnapshotName(1) != want.SnapshotName(1) {
		t.Errorf("snapshot name differs: %q vs %q", got.SnapshotName(1), want.SnapshotName(1))
	}
	if len(got.Annotations) != len(want.Annotations) {
		t.Errorf("annotations differ: %v vs %v", got.Annotations, want.Annotations)
	}
	for node, a := range want.Annotations {
		if got.Annotations[node] != a {
			t.Errorf("annotation of %s: %q, want %q", node, got.Annotations[node], a)
		}
	}
	for s := 0; s < want.Z.NumSnapshots(); s++ {
		for i := 0; i < want.Z.NumNodes(); i++ {
			if got.Nodes.Name(i) != want.Nodes.Name(i) {
				t.Fatalf("node %d: %q vs %q", i, got.Nodes.Name(i), want.Nodes.Name(i))
			}
			if got.P.Has(s, i) != want.P.Has(s, i) {
				t.Errorf("presence [%d,%d] differs", s, i)
			}
			gv, _ := got.Z.Vector(s, i)
			wv, _ := want.Z.Vector(s, i)
			for k := range wv {
				if gv[k] != wv[k] {
					t.Errorf("Z[%d,%d,%d] = %f, want %f", s, i, k, gv[k], wv[k])
				}
			}
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	// All sample values are exactly representable in float16.
	for _, prec := range []distance.PrecisionType{distance.Float32, distance.Float16} {
		t.Run(string(prec), func(t *testing.T) {
			ds := sampleDataset(t)
			var buf bytes.Buffer
			if err := Encode(&buf, ds, prec); err != nil {
				t.Fatal(err)
			}
			got, err := Decode(&buf)
			if err != nil {
				t.Fatal(err)
			}
			assertSameDataset(t, ds, got)
		})
	}
}

func TestEncodeDecodeInt8(t *testing.T) {
	ds := sampleDataset(t)
	var buf bytes.Buffer
	if err := Encode(&buf, ds, distance.Int8); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for s := 0; s < ds.Z.NumSnapshots(); s++ {
		for i := 0; i < ds.Z.NumNodes(); i++ {
			if got.P.Has(s, i) != ds.P.Has(s, i) {
				t.Errorf("presence [%d,%d] differs", s, i)
			}
			gv, _ := got.Z.Vector(s, i)
			wv, _ := ds.Z.Vector(s, i)
			for k := range wv {
				if math.Abs(float64(gv[k]-wv[k])) > 0.05 {
					t.Errorf("Z[%d,%d,%d] = %f, want ~%f", s, i, k, gv[k], wv[k])
				}
			}
		}
	}
}

func TestEncodeRejectsUnknownPrecision(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleDataset(t), distance.PrecisionType("float64")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestEncodeFloat16Overflow(t *testing.T) {
	z, err := tensor.EmbeddingsFromRows([][][]float32{{{70000, 1}, {0, 1}}})
	if err != nil {
		t.Fatal(err)
	}
	nodes, _ := tensor.NewNodeIndex([]string{"big", "small"})
	ds := &tensor.Dataset{Nodes: nodes, Z: z, P: tensor.PresenceFromNonZero(z)}

	var buf bytes.Buffer
	if err := Encode(&buf, ds, distance.Float16); !errors.Is(err, distance.ErrFloat16Overflow) {
		t.Fatalf("expected ErrFloat16Overflow, got %v", err)
	}
	buf.Reset()
	if err := Encode(&buf, ds, distance.Float32); err != nil {
		t.Fatalf("float32 holds the value, got %v", err)
	}
}

func TestDecodeRejectsNonFinite(t *testing.T) {
	hdr, _ := json.Marshal(Header{
		Version:      FormatVersion,
		Precision:    distance.Float32,
		NumSnapshots: 1,
		NumNodes:     1,
		Dim:          2,
		Nodes:        []string{"a"},
	})
	snap := make([]byte, 1+2*4)
	snap[0] = 1
	binary.LittleEndian.PutUint32(snap[1:], math.Float32bits(float32(math.Inf(1))))
	binary.LittleEndian.PutUint32(snap[5:], math.Float32bits(1))

	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	fw.WriteFrame(OpCodeHeader, hdr)
	fw.WriteFrame(OpCodeSnapshot, snap)
	if _, err := Decode(&buf); !errors.Is(err, tensor.ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toy.dgv")
	ds := sampleDataset(t)
	if err := WriteFile(path, ds, distance.Float32); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(path + ".tmp-*")
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestDecodeCorruption(t *testing.T) {
	ds := sampleDataset(t)
	var buf bytes.Buffer
	if err := Encode(&buf, ds, distance.Float32); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	t.Run("FlippedPayloadByte", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[len(bad)-1] ^= 0xFF
		if _, err := Decode(bytes.NewReader(bad)); !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("expected ErrChecksumMismatch, got %v", err)
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		if _, err := Decode(bytes.NewReader(raw[:len(raw)-3])); !errors.Is(err, ErrIncompleteFrame) {
			t.Errorf("expected ErrIncompleteFrame, got %v", err)
		}
	})

	t.Run("BadMagic", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[0] = 0x00
		if _, err := Decode(bytes.NewReader(bad)); !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("expected ErrInvalidMagic, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := Decode(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("SnapshotBeforeHeader", func(t *testing.T) {
		var b bytes.Buffer
		NewFrameWriter(&b).WriteFrame(OpCodeSnapshot, []byte{1, 2, 3})
		if _, err := Decode(&b); !errors.Is(err, ErrCorruptDataset) {
			t.Errorf("expected ErrCorruptDataset, got %v", err)
		}
	})
}

func TestFrameRoundTrip(t *testing.T) {
	var b bytes.Buffer
	fw := NewFrameWriter(&b)
	if err := fw.WriteFrame(OpCodeHeader, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	op, payload, n, err := ReadFrame(&b)
	if err != nil {
		t.Fatal(err)
	}
	if op != OpCodeHeader || string(payload) != "hello" || n != HeaderSize+5 {
		t.Errorf("got op=0x%02x payload=%q n=%d", op, payload, n)
	}
	if _, _, _, err := ReadFrame(&b); err != io.EOF {
		t.Errorf("expected clean io.EOF, got %v", err)
	}
}
