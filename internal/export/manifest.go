package export

import (
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fixquant/fixquant/internal/version"
	"github.com/fixquant/fixquant/pkg/quant"
)

// Manifest records the provenance of one export run: what was written, with
// which options, by which build. Hardware bring-up uses it to tie a set of
// hex images back to the exact export that produced them.
type Manifest struct {
	RunID     string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Tool      string          `json:"tool"`
	Version   string          `json:"version"`
	Source    string          `json:"source,omitempty"`
	Options   quant.Options   `json:"options"`
	Files     []ManifestEntry `json:"files"`
}

// ManifestEntry describes one written hex file.
type ManifestEntry struct {
	Param    string `json:"param"`
	Kind     string `json:"kind"`
	File     string `json:"file"`
	Elements int    `json:"elements"`
	BitWidth int    `json:"bit_width"`
}

func newManifest(source string, opts quant.Options) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Tool:      "fixquant",
		Version:   version.String(),
		Source:    source,
		Options:   opts,
	}
}

// WriteFile pretty-prints the manifest to path with 2-space indentation.
func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
