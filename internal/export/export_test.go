package export

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/fixquant/fixquant/internal/logger"
	"github.com/fixquant/fixquant/pkg/quant"
)

func testResult(t *testing.T) *quant.Result {
	t.Helper()

	store := quant.NewParamStore()
	store.Add("layer1.weight", quant.Tensor{Shape: []int{2, 2}, Data: []float32{63.5, -63.5, 31.75, 0}})
	store.Add("layer1.bias", quant.Tensor{Shape: []int{2}, Data: []float32{1.0, -0.5}})

	res, err := quant.QuantizeModel(store, quant.DefaultOptions())
	if err != nil {
		t.Fatalf("QuantizeModel: %v", err)
	}
	return res
}

func TestExport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	log := logger.Text(io.Discard, slog.LevelInfo)
	manifest, err := New(dir, log).Export(testResult(t), quant.DefaultOptions(), "model.safetensors")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	// 8-bit weight hex: scale 0.5, values 127 -127 64 0 (63.5→127, 31.75→64).
	weightHex, err := os.ReadFile(filepath.Join(dir, "layer1_weight.hex"))
	if err != nil {
		t.Fatalf("read weight hex: %v", err)
	}
	if got, want := string(weightHex), "7f\n81\n40\n00\n"; got != want {
		t.Fatalf("weight hex: expected %q, got %q", want, got)
	}

	// 32-bit bias hex: scale 0.5, values 2 and -1.
	biasHex, err := os.ReadFile(filepath.Join(dir, "layer1_bias.hex"))
	if err != nil {
		t.Fatalf("read bias hex: %v", err)
	}
	if got, want := string(biasHex), "00000002\nffffffff\n"; got != want {
		t.Fatalf("bias hex: expected %q, got %q", want, got)
	}

	// Requant metadata keyed by bias name.
	raw, err := os.ReadFile(filepath.Join(dir, RequantParamsFile))
	if err != nil {
		t.Fatalf("read requant params: %v", err)
	}
	var doc map[string]quant.RequantParams
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse requant params: %v", err)
	}
	rq, ok := doc["layer1.bias"]
	if !ok {
		t.Fatalf("missing layer1.bias in requant params: %s", raw)
	}
	if rq.RealScale != 2.0 || rq.ScaleInt != 2 || rq.Shift != 0 {
		t.Fatalf("expected requant (2.0, 2, 0), got %+v", rq)
	}
	if !strings.Contains(string(raw), "  \"layer1.bias\"") {
		t.Fatalf("expected 2-space indentation, got: %s", raw)
	}

	// Manifest covers both tensors and records the run.
	if manifest.RunID == "" {
		t.Fatal("manifest missing run id")
	}
	if manifest.Source != "model.safetensors" {
		t.Fatalf("manifest source: %q", manifest.Source)
	}
	if len(manifest.Files) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(manifest.Files))
	}
	if manifest.Files[0].File != "layer1_weight.hex" || manifest.Files[0].BitWidth != 8 {
		t.Fatalf("unexpected first manifest entry: %+v", manifest.Files[0])
	}
	if manifest.Files[1].File != "layer1_bias.hex" || manifest.Files[1].BitWidth != 32 {
		t.Fatalf("unexpected second manifest entry: %+v", manifest.Files[1])
	}

	var onDisk Manifest
	rawManifest, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if err := json.Unmarshal(rawManifest, &onDisk); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if onDisk.RunID != manifest.RunID {
		t.Fatalf("manifest run id mismatch: %s vs %s", onDisk.RunID, manifest.RunID)
	}
}

func TestExportCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "weights")
	_, err := New(dir, nil).Export(testResult(t), quant.DefaultOptions(), "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, RequantParamsFile)); err != nil {
		t.Fatalf("expected requant params file: %v", err)
	}
}
