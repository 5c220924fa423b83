package storage

import (
	"encoding/json"

	"github.com/starford/postwriter/internal/models"
)

// Legacy key names of the three-entry browser layout. Each concern has the
// short name and the name the original editor wrote to local storage.
var (
	legacyFieldsKeys = []string{"fields", "yamlFields"}
	legacyBodyKeys   = []string{"body", "markdownContent"}
	legacyHiddenKeys = []string{"fieldsHidden", "yamlIsHidden"}
)

// DecodeLegacy rebuilds a snapshot from the independent key/value entries
// of the old layout. The entries were never written atomically, so any
// missing or unreadable entry falls back to its empty default: no fields,
// empty body, fields shown. Unreadable field entries are skipped one by one.
func DecodeLegacy(kv map[string]string) *models.Snapshot {
	snap := models.NewSnapshot()

	if raw, ok := lookup(kv, legacyFieldsKeys); ok {
		var entries []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &entries); err == nil {
			for _, e := range entries {
				var f models.Field
				if err := json.Unmarshal(e, &f); err != nil {
					continue
				}
				snap.Fields = append(snap.Fields, f)
			}
		}
	}

	if body, ok := lookup(kv, legacyBodyKeys); ok {
		snap.Body = body
	}

	if raw, ok := lookup(kv, legacyHiddenKeys); ok {
		var hidden bool
		if err := json.Unmarshal([]byte(raw), &hidden); err == nil {
			snap.FieldsHidden = hidden
		}
	}
	return snap
}

func lookup(kv map[string]string, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := kv[k]; ok {
			return v, true
		}
	}
	return "", false
}
