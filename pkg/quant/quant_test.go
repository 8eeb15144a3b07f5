package quant

import (
	"math"
	"testing"
)

func flat(data ...float32) Tensor {
	return Tensor{Shape: []int{len(data)}, Data: data}
}

func TestNewTensor(t *testing.T) {
	t.Parallel()

	ten, err := NewTensor([]int{2, 3}, make([]float32, 6))
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}
	if ten.Elems() != 6 {
		t.Fatalf("expected 6 elements, got %d", ten.Elems())
	}

	if _, err := NewTensor([]int{2, 3}, make([]float32, 5)); err == nil {
		t.Fatal("expected error for mismatched shape")
	}
	if _, err := NewTensor([]int{2, 0}, nil); err == nil {
		t.Fatal("expected error for zero dim")
	}

	ten, err = NewTensor(nil, make([]float32, 4))
	if err != nil {
		t.Fatalf("NewTensor nil shape: %v", err)
	}
	if len(ten.Shape) != 1 || ten.Shape[0] != 4 {
		t.Fatalf("expected flat shape [4], got %v", ten.Shape)
	}
}

func TestQuantizeRangeInvariant(t *testing.T) {
	t.Parallel()

	input := flat(-3.7, -1.0, -0.25, 0, 0.5, 1.9, 2.4, 3.7)
	for _, bits := range []int{2, 3, 4, 8, 16, 32} {
		q, err := Quantize(input, bits)
		if err != nil {
			t.Fatalf("Quantize bits=%d: %v", bits, err)
		}
		qmin, qmax := quantRange(bits)
		for i, v := range q.Data {
			if int64(v) < qmin || int64(v) > qmax {
				t.Fatalf("bits=%d element %d: %d outside [%d, %d]", bits, i, v, qmin, qmax)
			}
		}
		if q.BitWidth != bits {
			t.Fatalf("expected bit width %d, got %d", bits, q.BitWidth)
		}
	}
}

func TestQuantizeScale(t *testing.T) {
	t.Parallel()

	// maxAbs 63.5 at 8 bits: scale = 63.5/127 = 0.5.
	q, err := Quantize(flat(63.5, -63.5, 10), 8)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if q.Scale != 0.5 {
		t.Fatalf("expected scale 0.5, got %g", q.Scale)
	}
	if q.Data[0] != 127 || q.Data[1] != -127 || q.Data[2] != 20 {
		t.Fatalf("unexpected quantized values: %v", q.Data)
	}
}

func TestQuantizeAllZero(t *testing.T) {
	t.Parallel()

	q, err := Quantize(flat(0, 0, 0, 0), 8)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if q.Scale != 1.0 {
		t.Fatalf("expected fallback scale 1.0, got %g", q.Scale)
	}
	for i, v := range q.Data {
		if v != 0 {
			t.Fatalf("element %d: expected 0, got %d", i, v)
		}
	}
}

func TestQuantizeDequantizeErrorBound(t *testing.T) {
	t.Parallel()

	input := flat(-2.31, -1.07, -0.004, 0.33, 0.91, 1.618, 2.31)
	q, err := Quantize(input, 8)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	back := Dequantize(q)
	bound := 0.5*q.Scale + 1e-6
	for i := range input.Data {
		diff := math.Abs(float64(back.Data[i]) - float64(input.Data[i]))
		if diff > bound {
			t.Fatalf("element %d: dequant error %g exceeds %g", i, diff, bound)
		}
	}
}

func TestQuantizeBadBits(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{-1, 0, 1, 33} {
		if _, err := Quantize(flat(1), bits); err == nil {
			t.Fatalf("expected error for bits=%d", bits)
		}
	}
}

func TestQuantizeBias(t *testing.T) {
	t.Parallel()

	q, err := QuantizeBias(flat(1.0, -0.5, 0.25), 1.0, 0.5, 32)
	if err != nil {
		t.Fatalf("QuantizeBias: %v", err)
	}
	if q.Scale != 0.5 {
		t.Fatalf("expected scale 0.5, got %g", q.Scale)
	}
	want := []int32{2, -1, 1} // round(0.25/0.5) = round(0.5) rounds away from zero
	for i, v := range q.Data {
		if v != want[i] {
			t.Fatalf("element %d: expected %d, got %d", i, want[i], v)
		}
	}
}

func TestQuantizeBiasClamps(t *testing.T) {
	t.Parallel()

	// 1e6 / (0.5*0.5) = 4e6 overflows 8-bit range and must clamp.
	q, err := QuantizeBias(flat(1e6, -1e6), 0.5, 0.5, 8)
	if err != nil {
		t.Fatalf("QuantizeBias: %v", err)
	}
	if q.Data[0] != 127 || q.Data[1] != -128 {
		t.Fatalf("expected [127 -128], got %v", q.Data)
	}
}
