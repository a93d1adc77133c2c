package excel

// mapping.go declares the static column mapping model. A Mapping is an
// explicit, ordered list of columns built once per entity type; it drives both
// reading (header -> setter) and writing (getter -> header). There is no
// runtime reflection: each column carries its own typed accessor closures.

import "strings"

// Column binds one logical field of T to a spreadsheet column.
type Column[T any] struct {
	// Field is the logical property name, used in error reporting and when
	// narrowing a mapping by column name.
	Field string

	// Header is the display text written to (and matched against) row 1.
	Header string

	// Required marks the column as mandatory: a blank cell produces a
	// REQUIRED_FIELD_MISSING error.
	Required bool

	// Critical escalates this column's field errors from Error to Critical
	// severity. A row with a Critical error is dropped from the parsed data.
	Critical bool

	// Parse assigns the trimmed cell text to the field. A nil Parse marks a
	// display-only column that is never populated from a row.
	Parse func(dst *T, raw string) error

	// Value reads the field for export. A nil Value writes an empty cell.
	Value func(src *T) any

	// Example is the placeholder written to the illustrative template row.
	Example string
}

// Mapping is an ordered set of columns with unique field names.
type Mapping[T any] []Column[T]

// Headers returns the display headers in mapping order.
func (m Mapping[T]) Headers() []string {
	out := make([]string, len(m))
	for i, c := range m {
		out[i] = c.Header
	}
	return out
}

// Narrow returns a mapping restricted to the given column names, matched
// case-insensitively against either field or header. An empty include list
// keeps everything; exclude wins over include.
func (m Mapping[T]) Narrow(include, exclude []string) Mapping[T] {
	if len(include) == 0 && len(exclude) == 0 {
		return m
	}

	inc := nameSet(include)
	exc := nameSet(exclude)

	out := make(Mapping[T], 0, len(m))
	for _, c := range m {
		field := strings.ToLower(c.Field)
		header := strings.ToLower(c.Header)
		if exc[field] || exc[header] {
			continue
		}
		if len(inc) > 0 && !inc[field] && !inc[header] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// columnIndex resolves each mapping column to its position in the sheet.
// With headers, row 1 text is reverse-looked-up against the mapping's display
// names case-insensitively; without headers, columns are assigned positionally
// in mapping order. Unmatched columns resolve to -1.
func (m Mapping[T]) columnIndex(headers []string, hasHeader bool) []int {
	idx := make([]int, len(m))
	if !hasHeader {
		for i := range m {
			idx[i] = i
		}
		return idx
	}

	byHeader := make(map[string]int, len(headers))
	for pos, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, seen := byHeader[key]; !seen {
			byHeader[key] = pos
		}
	}

	for i, c := range m {
		pos, ok := byHeader[strings.ToLower(c.Header)]
		if !ok {
			pos = -1
		}
		idx[i] = pos
	}
	return idx
}

func nameSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return set
}
