// Package serializer converts a field collection and a markdown body into
// frontmatter text and the structured export payload, and parses imported
// payloads back into fields.
package serializer

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/postwriter/internal/models"
)

const delim = "---"

// Options controls frontmatter rendering.
type Options struct {
	// Legacy reproduces the unescaped output of the original editor: nothing
	// is quoted and null values are written as the literal text "null".
	Legacy bool
}

// Markdown renders fields as a YAML frontmatter block followed by body:
//
//	---
//	<lines>
//	---
//
//	<body>
func Markdown(fields []models.Field, body string, opts Options) string {
	lines := FrontmatterLines(fields, opts)

	var b strings.Builder
	b.WriteString(delim + "\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n" + delim + "\n\n")
	b.WriteString(body)
	return b.String()
}

// FrontmatterLines returns the frontmatter lines for fields in order
// ascending. A list field contributes its label line plus one line per item.
// In legacy mode an empty list contributes an extra blank line.
func FrontmatterLines(fields []models.Field, opts Options) []string {
	sorted := make([]models.Field, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var lines []string
	for _, f := range sorted {
		if opts.Legacy {
			lines = append(lines, legacyLines(f)...)
		} else {
			lines = append(lines, quotedLines(f)...)
		}
	}
	return lines
}

func legacyLines(f models.Field) []string {
	switch {
	case f.Type == models.TypeList && f.Value.IsList():
		// The label line keeps its trailing space; an empty list leaves one
		// blank line where the items would be.
		out := []string{f.Label + ": "}
		items := f.Value.Items()
		if len(items) == 0 {
			return append(out, "")
		}
		for _, it := range items {
			out = append(out, "  - "+it)
		}
		return out
	case f.Type == models.TypeBoolean:
		if f.Value.Bool() {
			return []string{f.Label + ": true"}
		}
		return []string{f.Label + ": false"}
	default:
		return []string{f.Label + ": " + f.Value.String()}
	}
}

func quotedLines(f models.Field) []string {
	key := quote(f.Label, true) + ":"
	switch f.Type {
	case models.TypeList:
		out := []string{key}
		for _, it := range f.Value.Items() {
			out = append(out, "  - "+quote(it, true))
		}
		return out
	case models.TypeBoolean:
		if f.Value.Bool() {
			return []string{key + " true"}
		}
		return []string{key + " false"}
	}
	if f.Value.IsNull() {
		return []string{key}
	}
	// Numbers and dates stay plain when YAML reads them back unchanged;
	// free text is always kept a string.
	v := f.Value.String()
	return []string{key + " " + quote(v, f.Type == models.TypeText || v == "")}
}

// quote renders s as a single-line YAML scalar. With forceString the scalar
// is quoted whenever plain YAML would resolve it to a non-string.
func quote(s string, forceString bool) string {
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: s}
	if forceString {
		node.Tag = "!!str"
	}
	if strings.ContainsAny(s, "\n\r") {
		node.Style = yaml.DoubleQuotedStyle
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
	}
	return strings.TrimSuffix(string(out), "\n")
}
