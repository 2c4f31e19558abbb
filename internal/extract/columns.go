package extract

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Columns maps lowercased header names to field positions.
type Columns map[string]int

// MapColumns builds a case-insensitive column name to index map.
func MapColumns(header []string) Columns {
	m := make(Columns, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// Has reports whether any of the named columns is present in the header.
func (c Columns) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := c[strings.ToLower(name)]; ok {
			return true
		}
	}
	return false
}

// Get returns a column value by name, or "" when the column is absent or
// the record is short.
func (c Columns) Get(record []string, name string) string {
	idx, ok := c[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// First returns the first non-empty value among the named columns. Used for
// columns whose header changed names between releases.
func (c Columns) First(record []string, names ...string) string {
	for _, name := range names {
		if v := c.Get(record, name); v != "" {
			return v
		}
	}
	return ""
}

// Require verifies the named columns are all present, listing every missing
// one in the returned error.
func (c Columns) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := c[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("extract: missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
