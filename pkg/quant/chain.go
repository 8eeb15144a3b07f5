package quant

import (
	"fmt"
	"strings"
)

// ParamKind classifies a parameter by its name, computed once at ingestion.
type ParamKind uint8

const (
	KindOther ParamKind = iota
	KindWeight
	KindBias
)

func (k ParamKind) String() string {
	switch k {
	case KindWeight:
		return "weight"
	case KindBias:
		return "bias"
	default:
		return "other"
	}
}

// KindOf derives the kind from a parameter name. The weight check runs
// first, so a name containing both substrings resolves to KindWeight.
func KindOf(name string) ParamKind {
	switch {
	case strings.Contains(name, "weight"):
		return KindWeight
	case strings.Contains(name, "bias"):
		return KindBias
	default:
		return KindOther
	}
}

// Param is a single named tensor with its derived kind.
type Param struct {
	Name   string
	Kind   ParamKind
	Tensor Tensor
}

// ParamStore is an ordered collection of named parameters. Order is
// significant: it carries the weight-before-bias adjacency contract the
// quantization chain depends on, so entries are kept in insertion order.
type ParamStore struct {
	params []Param
}

func NewParamStore() *ParamStore {
	return &ParamStore{}
}

// Add appends a parameter, deriving its kind from the name.
func (s *ParamStore) Add(name string, t Tensor) {
	s.params = append(s.params, Param{Name: name, Kind: KindOf(name), Tensor: t})
}

func (s *ParamStore) Len() int { return len(s.params) }

// Params returns the parameters in insertion order. The caller must not
// reorder the slice.
func (s *ParamStore) Params() []Param { return s.params }

// LayerScale pairs the input activation scale of a layer with the scale of
// its quantized weight.
type LayerScale struct {
	InputScale  float64
	WeightScale float64
}

// Options configures a quantization run.
type Options struct {
	WeightBits int     `json:"weight_bits"`
	BiasBits   int     `json:"bias_bits"`
	ScaleBits  int     `json:"scale_bits"`
	MaxShift   int     `json:"max_shift"`
	OutScale   float64 `json:"out_scale"`
}

// DefaultOptions returns the documented contract for FPGA export:
// 8-bit weights, 32-bit biases, 16-bit requant mantissa, shifts below 31,
// and unit output scale (activations assumed normalized between layers).
func DefaultOptions() Options {
	return Options{
		WeightBits: 8,
		BiasBits:   32,
		ScaleBits:  16,
		MaxShift:   31,
		OutScale:   1.0,
	}
}

func (o Options) Validate() error {
	if err := checkBits(o.WeightBits); err != nil {
		return fmt.Errorf("weight_bits: %w", err)
	}
	if err := checkBits(o.BiasBits); err != nil {
		return fmt.Errorf("bias_bits: %w", err)
	}
	if o.ScaleBits < 1 || o.ScaleBits > 31 {
		return fmt.Errorf("%w: scale_bits=%d (want 1..31)", ErrInvalidOptions, o.ScaleBits)
	}
	if o.MaxShift < 1 || o.MaxShift > 63 {
		return fmt.Errorf("%w: max_shift=%d (want 1..63)", ErrInvalidOptions, o.MaxShift)
	}
	if o.OutScale <= 0 {
		return fmt.Errorf("%w: out_scale=%g (want > 0)", ErrInvalidOptions, o.OutScale)
	}
	return nil
}

// QuantizedParam is one chain output: the integer tensor plus, for biases,
// the requantization parameters of the layer the bias closes.
type QuantizedParam struct {
	Name    string
	Kind    ParamKind
	Tensor  QuantizedTensor
	Requant *RequantParams
}

// Result holds the outputs of one chain pass in parameter order.
type Result struct {
	Params      []QuantizedParam
	LayerScales map[string]LayerScale
	Skipped     []string
}

// QuantizeModel walks the parameter store in declaration order and quantizes
// every weight and bias it meets, threading scale state from layer to layer:
// each weight records (previous output scale, weight scale), each bias looks
// up its weight's record, is quantized in the product-of-scales domain, and
// closes the layer by solving the requant scale OutScale/(inScale*wScale).
//
// The traversal is an ordered, sequential fold. A bias whose matching weight
// has not been seen yet fails with ErrMissingWeight; an unsolvable requant
// scale fails with ErrScaleOutOfRange. Either error aborts the whole run.
func QuantizeModel(store *ParamStore, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		Params:      make([]QuantizedParam, 0, store.Len()),
		LayerScales: make(map[string]LayerScale),
	}
	prevOutputScale := 1.0

	for _, p := range store.Params() {
		switch p.Kind {
		case KindWeight:
			qt, err := Quantize(p.Tensor, opts.WeightBits)
			if err != nil {
				return nil, fmt.Errorf("quantize %s: %w", p.Name, err)
			}
			res.LayerScales[p.Name] = LayerScale{
				InputScale:  prevOutputScale,
				WeightScale: qt.Scale,
			}
			res.Params = append(res.Params, QuantizedParam{Name: p.Name, Kind: p.Kind, Tensor: qt})

		case KindBias:
			weightName := strings.ReplaceAll(p.Name, "bias", "weight")
			ls, ok := res.LayerScales[weightName]
			if !ok {
				return nil, fmt.Errorf("%w: %s (expected %s earlier in the parameter order)",
					ErrMissingWeight, p.Name, weightName)
			}
			qt, err := QuantizeBias(p.Tensor, ls.InputScale, ls.WeightScale, opts.BiasBits)
			if err != nil {
				return nil, fmt.Errorf("quantize %s: %w", p.Name, err)
			}
			realScale := opts.OutScale / (ls.InputScale * ls.WeightScale)
			rq, err := SolveScaleShift(realScale, opts.ScaleBits, opts.MaxShift)
			if err != nil {
				return nil, fmt.Errorf("requant %s: %w", p.Name, err)
			}
			res.Params = append(res.Params, QuantizedParam{Name: p.Name, Kind: p.Kind, Tensor: qt, Requant: &rq})
			prevOutputScale = opts.OutScale

		default:
			res.Skipped = append(res.Skipped, p.Name)
		}
	}

	return res, nil
}
