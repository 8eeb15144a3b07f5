package export

import (
	"bytes"
	"os"

	"github.com/goccy/go-json"

	"github.com/fixquant/fixquant/pkg/quant"
)

// RequantDoc is the requantization metadata document: an ordered mapping from
// bias parameter name to its requant params. Insertion order is preserved in
// the serialized JSON so the document reads in layer order.
type RequantDoc struct {
	names  []string
	params map[string]quant.RequantParams
}

func NewRequantDoc() *RequantDoc {
	return &RequantDoc{params: make(map[string]quant.RequantParams)}
}

// Add records the requant params for a bias. A repeated name overwrites the
// value but keeps the original position.
func (d *RequantDoc) Add(name string, p quant.RequantParams) {
	if _, ok := d.params[name]; !ok {
		d.names = append(d.names, name)
	}
	d.params[name] = p
}

func (d *RequantDoc) Len() int { return len(d.names) }

// MarshalJSON emits the entries as a single JSON object in insertion order.
func (d *RequantDoc) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range d.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(d.params[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WriteFile pretty-prints the document to path with 2-space indentation.
func (d *RequantDoc) WriteFile(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
