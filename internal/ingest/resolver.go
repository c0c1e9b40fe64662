package ingest

import "strings"

// NotFound is the column index reported for an unresolved field.
const NotFound = -1

// ResolveColumn returns the index of the first header containing a candidate
// term. Terms are tried in priority order, so an earlier term matching a later
// column wins over a later term matching an earlier column. Headers are
// expected to be lowercased already.
func ResolveColumn(headers []string, terms ...string) int {
	for _, term := range terms {
		for i, h := range headers {
			if strings.Contains(h, term) {
				return i
			}
		}
	}
	return NotFound
}

// HeaderMap maps canonical field names to column indexes for one file.
type HeaderMap map[string]int

// BuildHeaderMap resolves every field of the profile against the header row.
func BuildHeaderMap(headers []string, profile ColumnProfile) HeaderMap {
	m := make(HeaderMap, len(profile.Fields))
	for _, f := range profile.Fields {
		m[f.Name] = ResolveColumn(headers, f.Terms...)
	}
	return m
}

// Index returns the column for field, or NotFound.
func (m HeaderMap) Index(field string) int {
	idx, ok := m[field]
	if !ok {
		return NotFound
	}
	return idx
}

// Has reports whether field resolved to a column.
func (m HeaderMap) Has(field string) bool {
	return m.Index(field) != NotFound
}

// Get returns the cell for field in row, or "" when the field did not
// resolve or the row is too short.
func (m HeaderMap) Get(row []string, field string) string {
	idx := m.Index(field)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
