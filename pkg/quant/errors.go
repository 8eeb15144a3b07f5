package quant

import "errors"

var (
	ErrInvalidBits     = errors.New("quant: invalid bit width")
	ErrShapeMismatch   = errors.New("quant: shape does not match data length")
	ErrScaleOutOfRange = errors.New("quant: requant scale not representable in given bit width")
	ErrMissingWeight   = errors.New("quant: no quantized weight recorded for bias")
	ErrInvalidOptions  = errors.New("quant: invalid options")
)
