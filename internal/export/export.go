// Package export writes the outputs of a quantization run: one hex file per
// tensor, the requantization metadata document, and a run manifest.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fixquant/fixquant/internal/logger"
	"github.com/fixquant/fixquant/pkg/hexfile"
	"github.com/fixquant/fixquant/pkg/quant"
)

const (
	RequantParamsFile = "requant_params.json"
	ManifestFile      = "manifest.json"
)

// Exporter writes run outputs under a single directory. Export aborts on the
// first error; there is no partial-success mode, since a mismatched set of
// hex images burned into hardware is worse than a clean failure.
type Exporter struct {
	dir string
	log logger.Logger
}

func New(dir string, log logger.Logger) *Exporter {
	if log == nil {
		log = logger.Default()
	}
	return &Exporter{dir: dir, log: log}
}

// Export writes every quantized tensor as a hex file, collects bias requant
// params into the metadata document, and finishes with the run manifest.
// source names the input checkpoint and is recorded for provenance only.
func (e *Exporter) Export(res *quant.Result, opts quant.Options, source string) (*Manifest, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output dir: %w", err)
	}

	manifest := newManifest(source, opts)
	doc := NewRequantDoc()

	for _, p := range res.Params {
		name := hexfile.Filename(p.Name)
		if err := e.writeHex(filepath.Join(e.dir, name), p.Tensor); err != nil {
			return nil, fmt.Errorf("export %s: %w", p.Name, err)
		}
		e.log.Info("wrote tensor",
			"param", p.Name,
			"file", name,
			"elements", p.Tensor.Elems(),
			"bit_width", p.Tensor.BitWidth,
		)
		manifest.Files = append(manifest.Files, ManifestEntry{
			Param:    p.Name,
			Kind:     p.Kind.String(),
			File:     name,
			Elements: p.Tensor.Elems(),
			BitWidth: p.Tensor.BitWidth,
		})
		if p.Requant != nil {
			doc.Add(p.Name, *p.Requant)
		}
	}

	if err := doc.WriteFile(filepath.Join(e.dir, RequantParamsFile)); err != nil {
		return nil, fmt.Errorf("export: write %s: %w", RequantParamsFile, err)
	}
	e.log.Info("wrote requant params", "file", RequantParamsFile, "layers", doc.Len())

	if err := manifest.WriteFile(filepath.Join(e.dir, ManifestFile)); err != nil {
		return nil, fmt.Errorf("export: write %s: %w", ManifestFile, err)
	}
	e.log.Info("wrote manifest", "file", ManifestFile, "run_id", manifest.RunID)

	return manifest, nil
}

func (e *Exporter) writeHex(path string, t quant.QuantizedTensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := hexfile.Write(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
