package serializer

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/models"
)

// ImportKey is the top-level key holding the field sequence of an import file.
const ImportKey = "yamlFields"

// Import parses a YAML or JSON payload into fields. The payload is either
// an object {yamlFields: [...]} or the bare array written by ExportJSON.
//
// Missing entry attributes default to label "", type text, value null and
// order equal to the entry position. Returned fields carry no ids.
//
// Errors wrap apperr.ErrMalformedImport for unparseable input and
// apperr.ErrImportShape for input with an unexpected structure.
func Import(data []byte) ([]models.Field, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedImport, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", apperr.ErrImportShape)
	}

	seq, err := fieldSequence(doc.Content[0])
	if err != nil {
		return nil, err
	}

	out := make([]models.Field, 0, len(seq.Content))
	for i, entry := range seq.Content {
		f, err := decodeEntry(entry, i)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", apperr.ErrImportShape, i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func fieldSequence(root *yaml.Node) (*yaml.Node, error) {
	root = resolveAlias(root)
	switch root.Kind {
	case yaml.SequenceNode:
		return root, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value != ImportKey {
				continue
			}
			v := resolveAlias(root.Content[i+1])
			if v.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("%w: %s is not a sequence", apperr.ErrImportShape, ImportKey)
			}
			return v, nil
		}
		return nil, fmt.Errorf("%w: missing %s", apperr.ErrImportShape, ImportKey)
	default:
		return nil, fmt.Errorf("%w: top level is not an object", apperr.ErrImportShape)
	}
}

func decodeEntry(n *yaml.Node, pos int) (models.Field, error) {
	n = resolveAlias(n)
	if n.Kind != yaml.MappingNode {
		return models.Field{}, fmt.Errorf("not an object")
	}

	f := models.Field{Type: models.TypeText, Value: models.Null(), Order: pos}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		val := resolveAlias(n.Content[i+1])
		switch key {
		case "label":
			s, err := scalarString(val)
			if err != nil {
				return f, fmt.Errorf("label: %w", err)
			}
			f.Label = s
		case "type":
			if isNull(val) {
				continue
			}
			t, err := models.ParseFieldType(val.Value)
			if err != nil || val.Kind != yaml.ScalarNode {
				return f, fmt.Errorf("type: unknown field type %q", val.Value)
			}
			f.Type = t
		case "value":
			v, err := nodeValue(val)
			if err != nil {
				return f, fmt.Errorf("value: %w", err)
			}
			f.Value = v
		case "order":
			if isNull(val) {
				continue
			}
			o, err := strconv.Atoi(val.Value)
			if err != nil || val.Kind != yaml.ScalarNode {
				return f, fmt.Errorf("order: not an integer: %q", val.Value)
			}
			f.Order = o
		}
	}
	f.Value = f.Value.Coerce(f.Type)
	return f, nil
}

func nodeValue(n *yaml.Node) (models.Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return models.Null(), nil
		case "!!bool":
			b, err := strconv.ParseBool(n.Value)
			if err != nil {
				return models.Scalar(n.Value), nil
			}
			return models.Bool(b), nil
		}
		return models.Scalar(n.Value), nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, it := range n.Content {
			s, err := scalarString(resolveAlias(it))
			if err != nil {
				return models.Null(), fmt.Errorf("list item: %w", err)
			}
			items = append(items, s)
		}
		return models.List(items...), nil
	default:
		return models.Null(), fmt.Errorf("unsupported value")
	}
}

// scalarString returns the text of a scalar node; null becomes "".
func scalarString(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("not a scalar")
	}
	if isNull(n) {
		return "", nil
	}
	return n.Value, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
