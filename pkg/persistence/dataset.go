// Package persistence implements the binary dataset file: a sequence of
// CRC-checked frames holding a JSON header followed by one frame per snapshot.
//
// Snapshot frame payload: presence bitmap of ceil(N/8) bytes, LSB first,
// followed by N*D little-endian values in the header's precision. Int8 frames
// carry the snapshot's float32 quantization range between the two.
package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/sanonone/dygetviz/pkg/core/distance"
	"github.com/sanonone/dygetviz/pkg/core/tensor"
)

// FormatVersion is the current dataset file version.
const FormatVersion = 1

// ErrCorruptDataset is returned when frames are well formed but their content
// does not match the header.
var ErrCorruptDataset = errors.New("corrupt dataset")

// Header is the metadata frame at the start of a dataset file.
type Header struct {
	Version       int                    `json:"version"`
	Name          string                 `json:"name,omitempty"`
	Precision     distance.PrecisionType `json:"precision"`
	NumSnapshots  int                    `json:"num_snapshots"`
	NumNodes      int                    `json:"num_nodes"`
	Dim           int                    `json:"dim"`
	Nodes         []string               `json:"nodes"`
	SnapshotNames []string               `json:"snapshot_names,omitempty"`
	Annotations   map[string]string      `json:"annotations,omitempty"`
}

// Encode writes ds to w in the given precision.
func Encode(w io.Writer, ds *tensor.Dataset, prec distance.PrecisionType) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	prec, err := distance.ParsePrecision(string(prec))
	if err != nil {
		return err
	}
	hdr := Header{
		Version:       FormatVersion,
		Name:          ds.Name,
		Precision:     prec,
		NumSnapshots:  ds.Z.NumSnapshots(),
		NumNodes:      ds.Z.NumNodes(),
		Dim:           ds.Z.Dim(),
		Nodes:         ds.Nodes.Names(),
		SnapshotNames: ds.SnapshotNames,
		Annotations:   ds.Annotations,
	}
	payload, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	fw := NewFrameWriter(w)
	if err := fw.WriteFrame(OpCodeHeader, payload); err != nil {
		return err
	}

	for s := 0; s < hdr.NumSnapshots; s++ {
		buf, err := encodeSnapshot(ds, s, prec)
		if err != nil {
			return err
		}
		if err := fw.WriteFrame(OpCodeSnapshot, buf); err != nil {
			return fmt.Errorf("write snapshot %d: %w", s, err)
		}
	}
	return nil
}

func snapshotSize(n, d int, prec distance.PrecisionType) int {
	size := (n+7)/8 + n*d*prec.BytesPerValue()
	if prec == distance.Int8 {
		size += 4
	}
	return size
}

func encodeSnapshot(ds *tensor.Dataset, s int, prec distance.PrecisionType) ([]byte, error) {
	n, d := ds.Z.NumNodes(), ds.Z.Dim()
	presence := ds.P.Row(s).Bytes()
	buf := make([]byte, snapshotSize(n, d, prec))
	off := copy(buf, presence)

	var q distance.Quantizer
	if prec == distance.Int8 {
		values := make([]float32, 0, n*d)
		for i := 0; i < n; i++ {
			v, _ := ds.Z.Vector(s, i)
			values = append(values, v...)
		}
		q.Train(values)
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(q.AbsMax))
		off += 4
	}

	half := make([]uint16, d)
	codes := make([]int8, d)
	for i := 0; i < n; i++ {
		v, err := ds.Z.Vector(s, i)
		if err != nil {
			return nil, err
		}
		switch prec {
		case distance.Float16:
			if err := distance.EncodeFloat16(half, v); err != nil {
				return nil, fmt.Errorf("snapshot %d node %q: %w", s, ds.Nodes.Name(i), err)
			}
			for _, b := range half {
				binary.LittleEndian.PutUint16(buf[off:], b)
				off += 2
			}
		case distance.Int8:
			q.QuantizeInto(codes, v)
			for _, c := range codes {
				buf[off] = byte(c)
				off++
			}
		default:
			for _, f := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
				off += 4
			}
		}
	}
	return buf, nil
}

// Decode reads a dataset previously written by Encode.
func Decode(r io.Reader) (*tensor.Dataset, error) {
	op, payload, _, err := ReadFrame(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if op != OpCodeHeader {
		return nil, fmt.Errorf("%w: first frame has opcode 0x%02x", ErrCorruptDataset, op)
	}
	var hdr Header
	if err := json.Unmarshal(payload, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptDataset, err)
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptDataset, hdr.Version)
	}
	if _, err := distance.ParsePrecision(string(hdr.Precision)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDataset, err)
	}
	if len(hdr.Nodes) != hdr.NumNodes || hdr.NumSnapshots <= 0 || hdr.Dim <= 0 {
		return nil, fmt.Errorf("%w: header shape (%d, %d, %d) with %d node names",
			ErrCorruptDataset, hdr.NumSnapshots, hdr.NumNodes, hdr.Dim, len(hdr.Nodes))
	}

	n, d := hdr.NumNodes, hdr.Dim
	bitmapLen := (n + 7) / 8
	want := snapshotSize(n, d, hdr.Precision)

	data := make([]float32, 0, hdr.NumSnapshots*n*d)
	rows := make([]*tensor.BitSet, hdr.NumSnapshots)
	half := make([]uint16, d)
	codes := make([]int8, d)
	vec := make([]float32, d)
	for s := 0; s < hdr.NumSnapshots; s++ {
		op, payload, _, err := ReadFrame(r)
		if err != nil {
			return nil, fmt.Errorf("read snapshot %d: %w", s, err)
		}
		if op != OpCodeSnapshot || len(payload) != want {
			return nil, fmt.Errorf("%w: snapshot %d frame (op 0x%02x, %d bytes, want %d)",
				ErrCorruptDataset, s, op, len(payload), want)
		}
		rows[s] = tensor.BitSetFromBytes(payload[:bitmapLen], n)
		off := bitmapLen

		var q distance.Quantizer
		if hdr.Precision == distance.Int8 {
			q.AbsMax = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		}
		for i := 0; i < n; i++ {
			switch hdr.Precision {
			case distance.Float16:
				for k := range half {
					half[k] = binary.LittleEndian.Uint16(payload[off:])
					off += 2
				}
				distance.DecodeFloat16(vec, half)
			case distance.Int8:
				for k := range codes {
					codes[k] = int8(payload[off])
					off++
				}
				q.DequantizeInto(vec, codes)
			default:
				for k := range vec {
					vec[k] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
					off += 4
				}
			}
			data = append(data, vec...)
		}
	}

	z, err := tensor.NewEmbeddings(data, hdr.NumSnapshots, n, d)
	if err != nil {
		return nil, err
	}
	p, err := tensor.PresenceFromRows(rows, n)
	if err != nil {
		return nil, err
	}
	nodes, err := tensor.NewNodeIndex(hdr.Nodes)
	if err != nil {
		return nil, err
	}
	ds := &tensor.Dataset{
		Name:          hdr.Name,
		Nodes:         nodes,
		SnapshotNames: hdr.SnapshotNames,
		Z:             z,
		P:             p,
		Annotations:   hdr.Annotations,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// WriteFile encodes ds into path atomically: the data goes to a temporary file
// in the same directory which is fsynced and renamed over path.
func WriteFile(path string, ds *tensor.Dataset, prec distance.PrecisionType) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	buf := bufio.NewWriter(tmp)
	if err := Encode(buf, ds, prec); err != nil {
		tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace dataset file: %w", err)
	}
	return nil
}
