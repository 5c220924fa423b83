package serializer

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// Report describes whether a rendered document carries a usable frontmatter block.
type Report struct {
	Valid           bool     `json:"valid"`
	Error           string   `json:"error,omitempty"`
	DuplicateLabels []string `json:"duplicateLabels"`
	Keys            []string `json:"keys"`
}

// Lint checks the frontmatter block of a rendered markdown document. Invalid
// YAML is reported, as are repeated keys; neither is corrected.
func Lint(markdown string) Report {
	rep := Report{DuplicateLabels: []string{}, Keys: []string{}}

	block, ok := splitFrontmatter([]byte(markdown))
	if !ok {
		rep.Error = "missing frontmatter delimiters"
		return rep
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		rep.Error = err.Error()
		return rep
	}
	if len(doc.Content) == 0 {
		rep.Valid = true
		return rep
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		rep.Error = "frontmatter is not a mapping"
		return rep
	}

	seen := make(map[string]int)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k := root.Content[i].Value
		rep.Keys = append(rep.Keys, k)
		seen[k]++
		if seen[k] == 2 {
			rep.DuplicateLabels = append(rep.DuplicateLabels, k)
		}
	}
	rep.Valid = true
	return rep
}

// splitFrontmatter returns the YAML between the leading --- delimiters.
func splitFrontmatter(data []byte) ([]byte, bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, false
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, false
	}
	return []byte(strings.TrimPrefix(string(rest[:idx]), "\n")), true
}
