// Package hexfile serializes quantized tensors as fixed-width two's-complement
// hex text, one value per line, the memory-init format consumed by FPGA
// toolchains ($readmemh and friends).
package hexfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fixquant/fixquant/pkg/quant"
)

var (
	ErrWidthNotNibble  = errors.New("hexfile: bit width must be a positive multiple of 4")
	ErrValueOutOfRange = errors.New("hexfile: value outside signed range for bit width")
)

// EncodeValue renders v as a zero-padded lowercase hex string of exactly
// widthBits/4 digits. Negative values are mapped to two's complement within
// the width (v + 2^widthBits).
func EncodeValue(v int64, widthBits int) (string, error) {
	if widthBits <= 0 || widthBits > 64 || widthBits%4 != 0 {
		return "", fmt.Errorf("%w: %d", ErrWidthNotNibble, widthBits)
	}
	if widthBits < 64 {
		qmax := (int64(1) << uint(widthBits-1)) - 1
		qmin := -(int64(1) << uint(widthBits-1))
		if v < qmin || v > qmax {
			return "", fmt.Errorf("%w: %d at width %d", ErrValueOutOfRange, v, widthBits)
		}
	}
	u := uint64(v)
	if widthBits < 64 {
		u &= (uint64(1) << uint(widthBits)) - 1
	}
	return fmt.Sprintf("%0*x", widthBits/4, u), nil
}

// Encode returns the hex strings for every element of the tensor in row-major
// flattened order, at the tensor's own bit width.
func Encode(q quant.QuantizedTensor) ([]string, error) {
	out := make([]string, len(q.Data))
	for i, v := range q.Data {
		s, err := EncodeValue(int64(v), q.BitWidth)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// Write streams the encoded tensor to w, one value per line. Output is
// buffered; there is no partial-write recovery.
func Write(w io.Writer, q quant.QuantizedTensor) error {
	bw := bufio.NewWriter(w)
	for i, v := range q.Data {
		s, err := EncodeValue(int64(v), q.BitWidth)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		if _, err := bw.WriteString(s); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Filename maps a parameter name to its hex file name: dots become
// underscores, with a ".hex" suffix.
func Filename(param string) string {
	return strings.ReplaceAll(param, ".", "_") + ".hex"
}
