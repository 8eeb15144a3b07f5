// Package safetensors reads .safetensors checkpoints and exposes the tensors
// in declaration order. Order matters downstream: the quantization chain
// pairs each bias with the weight declared before it, so the header's byte
// offsets (which writers emit in declaration order) are the order contract.
package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// TensorInfo describes one tensor in the file.
type TensorInfo struct {
	Name  string
	DType string
	Shape []int
	Start int64
	End   int64
}

// Elems returns the element count implied by the shape.
func (t TensorInfo) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// File is a parsed safetensors header. Tensor data is read on demand.
type File struct {
	Path      string
	DataStart int64
	tensors   []TensorInfo
	byName    map[string]int
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open parses the header of a safetensors file. Tensors are ordered by their
// data offset, which recovers the writer's declaration order.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("safetensors: read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("safetensors: read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("safetensors: parse header: %w", err)
	}
	delete(raw, "__metadata__")

	tensors := make([]TensorInfo, 0, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("safetensors: parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("safetensors: tensor %s: invalid data_offsets", name)
		}
		for _, d := range th.Shape {
			if d <= 0 {
				return nil, fmt.Errorf("safetensors: tensor %s: invalid dim %d", name, d)
			}
		}
		tensors = append(tensors, TensorInfo{
			Name:  name,
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		})
	}

	sort.Slice(tensors, func(i, j int) bool {
		if tensors[i].Start != tensors[j].Start {
			return tensors[i].Start < tensors[j].Start
		}
		return tensors[i].Name < tensors[j].Name
	})

	byName := make(map[string]int, len(tensors))
	for i, t := range tensors {
		byName[t.Name] = i
	}

	return &File{
		Path:      path,
		DataStart: int64(8 + headerLen),
		tensors:   tensors,
		byName:    byName,
	}, nil
}

// Tensors returns all tensors in declaration order.
func (f *File) Tensors() []TensorInfo { return f.tensors }

// Tensor looks a tensor up by name.
func (f *File) Tensor(name string) (TensorInfo, bool) {
	i, ok := f.byName[name]
	if !ok {
		return TensorInfo{}, false
	}
	return f.tensors[i], true
}

// ReadF32 reads one tensor and converts it to float32, decoding F32, F16 and
// BF16 storage.
func (f *File) ReadF32(name string) ([]float32, error) {
	info, ok := f.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor not found: %s", name)
	}

	raw := make([]byte, info.End-info.Start)
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	if _, err := file.ReadAt(raw, f.DataStart+info.Start); err != nil {
		return nil, fmt.Errorf("safetensors: read tensor %s: %w", name, err)
	}

	n := info.Elems()
	switch info.DType {
	case "F32":
		if len(raw) != n*4 {
			return nil, fmt.Errorf("safetensors: tensor %s: bad f32 payload size", name)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case "BF16":
		if len(raw) != n*2 {
			return nil, fmt.Errorf("safetensors: tensor %s: bad bf16 payload size", name)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
		return out, nil
	case "F16":
		if len(raw) != n*2 {
			return nil, fmt.Errorf("safetensors: tensor %s: bad f16 payload size", name)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = f16ToF32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("safetensors: tensor %s: unsupported dtype %s", name, info.DType)
	}
}

func f16ToF32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var bits uint32
	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// subnormal: renormalize
			e := uint32(127 - 15 + 1)
			for frac&0x400 == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			bits = sign<<31 | e<<23 | frac<<13
		}
	case 0x1F:
		bits = sign<<31 | 0x7F800000 | frac<<13
	default:
		bits = sign<<31 | (exp+127-15)<<23 | frac<<13
	}
	return math.Float32frombits(bits)
}
