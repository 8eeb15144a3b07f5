// Package quant implements symmetric per-tensor quantization of model
// parameters to fixed-width signed integers, plus the scale/shift search
// used to requantize accumulator results on fixed-point hardware.
package quant

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

// Tensor is an n-dimensional array of float32 values in row-major order.
// Tensors are read-only inputs; nothing in this package mutates them.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor builds a Tensor and checks that the shape matches the data length.
// A nil shape is treated as a flat 1-D tensor.
func NewTensor(shape []int, data []float32) (Tensor, error) {
	if shape == nil {
		return Tensor{Shape: []int{len(data)}, Data: data}, nil
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return Tensor{}, fmt.Errorf("%w: invalid dim %d", ErrShapeMismatch, d)
		}
		n *= d
	}
	if n != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %v needs %d elements, have %d", ErrShapeMismatch, shape, n, len(data))
	}
	return Tensor{Shape: shape, Data: data}, nil
}

// Elems returns the number of scalar elements.
func (t Tensor) Elems() int { return len(t.Data) }

// QuantizedTensor is the integer image of a Tensor together with the scale
// that produced it. Every element lies in [-2^(BitWidth-1), 2^(BitWidth-1)-1].
type QuantizedTensor struct {
	Shape    []int
	Data     []int32
	BitWidth int
	Scale    float64
}

// Elems returns the number of scalar elements.
func (q QuantizedTensor) Elems() int { return len(q.Data) }

// quantRange returns the signed integer range for a bit width.
func quantRange(bits int) (qmin, qmax int64) {
	qmax = (int64(1) << uint(bits-1)) - 1
	qmin = -(int64(1) << uint(bits-1))
	return qmin, qmax
}

func checkBits(bits int) error {
	if bits < 2 || bits > 32 {
		return fmt.Errorf("%w: %d (want 2..32)", ErrInvalidBits, bits)
	}
	return nil
}

// maxAbs returns the largest magnitude in the tensor.
func maxAbs(t Tensor) float32 {
	var m float32
	for _, v := range t.Data {
		if a := math32.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// Quantize maps a tensor onto bits-wide signed integers using symmetric
// per-tensor quantization: scale = maxAbs/qmax, each element becomes
// clamp(round(x/scale), qmin, qmax). An all-zero tensor quantizes to all
// zeroes with a fallback scale of 1.0. Behaviour on NaN or infinite input
// is undefined.
func Quantize(t Tensor, bits int) (QuantizedTensor, error) {
	if err := checkBits(bits); err != nil {
		return QuantizedTensor{}, err
	}
	_, qmax := quantRange(bits)
	scale := 1.0
	if m := maxAbs(t); m != 0 {
		scale = float64(m) / float64(qmax)
	}
	return quantizeWithScale(t, scale, bits), nil
}

// QuantizeBias quantizes a bias tensor with scale = inputScale*weightScale so
// the result shares the implicit scale of an accumulated weight×input sum and
// can be added to it without an extra rescale.
func QuantizeBias(t Tensor, inputScale, weightScale float64, bits int) (QuantizedTensor, error) {
	if err := checkBits(bits); err != nil {
		return QuantizedTensor{}, err
	}
	return quantizeWithScale(t, inputScale*weightScale, bits), nil
}

func quantizeWithScale(t Tensor, scale float64, bits int) QuantizedTensor {
	qmin, qmax := quantRange(bits)
	out := make([]int32, len(t.Data))
	for i, v := range t.Data {
		q := int64(math.Round(float64(v) / scale))
		if q < qmin {
			q = qmin
		} else if q > qmax {
			q = qmax
		}
		out[i] = int32(q)
	}
	return QuantizedTensor{Shape: t.Shape, Data: out, BitWidth: bits, Scale: scale}
}

// Dequantize reconstructs the real-valued tensor q*scale. Per-element error
// relative to the original input is bounded by scale/2 for unclamped values.
func Dequantize(q QuantizedTensor) Tensor {
	out := make([]float32, len(q.Data))
	for i, v := range q.Data {
		out[i] = float32(float64(v) * q.Scale)
	}
	return Tensor{Shape: q.Shape, Data: out}
}
