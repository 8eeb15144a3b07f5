package safetensors

import (
	"fmt"

	"github.com/fixquant/fixquant/pkg/quant"
)

// LoadParams reads every tensor of a checkpoint, in declaration order, into
// a parameter store ready for the quantization chain.
func LoadParams(path string) (*quant.ParamStore, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}

	store := quant.NewParamStore()
	for _, info := range f.Tensors() {
		data, err := f.ReadF32(info.Name)
		if err != nil {
			return nil, err
		}
		t, err := quant.NewTensor(info.Shape, data)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %s: %w", info.Name, err)
		}
		store.Add(info.Name, t)
	}
	return store, nil
}
