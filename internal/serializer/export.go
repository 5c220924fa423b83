package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"

	"github.com/starford/postwriter/internal/models"
)

// ExportField is one entry of the export payload. The field id is dropped.
type ExportField struct {
	Label string           `json:"label"`
	Type  models.FieldType `json:"type"`
	Value models.Value     `json:"value"`
	Order int              `json:"order"`
}

// ExportJSON encodes fields, in order ascending, as the download payload
// [{label, type, value, order}, ...]. Output is byte-identical for equal input.
func ExportJSON(fields []models.Field) ([]byte, error) {
	sorted := make([]models.Field, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	out := make([]ExportField, len(sorted))
	for i, f := range sorted {
		out[i] = ExportField{Label: f.Label, Type: f.Type, Value: f.Value, Order: f.Order}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("serializer: encode export: %w", err)
	}
	return buf.Bytes(), nil
}

const defaultExportName = "frontmatter"

// ExportFilename derives the download name from the scalar value of a field
// labelled "title", falling back to frontmatter.json.
func ExportFilename(fields []models.Field) string {
	name := defaultExportName
	for _, f := range fields {
		if !strings.EqualFold(strings.TrimSpace(f.Label), "title") || !f.Value.IsScalar() {
			continue
		}
		if s := slug.Make(f.Value.String()); s != "" {
			name = s
		}
		break
	}
	return name + ".json"
}
