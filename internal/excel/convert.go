package excel

// convert.go provides typed cell parsing for spreadsheet data. Numeric and
// date parsing is locale-invariant; booleans additionally accept the common
// spreadsheet spellings (yes/no, y/n, 1/0, on/off) before falling back to
// strict parsing. Amount parsing tolerates currency symbols, thousands
// separators, and accounting-style negatives because exported files get
// re-imported after hand editing.

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"20060102",
}

// ParseBool parses a cell as a boolean.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1", "on":
		return true, nil
	case "false", "f", "no", "n", "0", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", s)
	}
	return b, nil
}

// ParseInt parses a cell as a signed integer, tolerating thousands separators.
func ParseInt(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// ParseFloat parses a cell as a float using invariant formatting.
func ParseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// ParseDecimal parses a monetary cell. It strips common currency symbols and
// separators and accepts accounting-format negatives "(123.45)".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseTime parses a cell as a date or timestamp against a fixed layout list.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseUUID parses a cell as a UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid %q", s)
	}
	return id, nil
}

// The adapters below wrap a plain field assignment into a Column.Parse
// closure, keeping entity mappings declarative.

// Text builds a Parse func for a string field.
func Text[T any](set func(*T, string)) func(*T, string) error {
	return func(dst *T, raw string) error {
		set(dst, raw)
		return nil
	}
}

// Integer builds a Parse func for an integer field.
func Integer[T any](set func(*T, int64)) func(*T, string) error {
	return func(dst *T, raw string) error {
		n, err := ParseInt(raw)
		if err != nil {
			return err
		}
		set(dst, n)
		return nil
	}
}

// Float builds a Parse func for a float64 field.
func Float[T any](set func(*T, float64)) func(*T, string) error {
	return func(dst *T, raw string) error {
		f, err := ParseFloat(raw)
		if err != nil {
			return err
		}
		set(dst, f)
		return nil
	}
}

// Number builds a Parse func for a decimal amount field.
func Number[T any](set func(*T, decimal.Decimal)) func(*T, string) error {
	return func(dst *T, raw string) error {
		d, err := ParseDecimal(raw)
		if err != nil {
			return err
		}
		set(dst, d)
		return nil
	}
}

// Boolean builds a Parse func for a bool field.
func Boolean[T any](set func(*T, bool)) func(*T, string) error {
	return func(dst *T, raw string) error {
		b, err := ParseBool(raw)
		if err != nil {
			return err
		}
		set(dst, b)
		return nil
	}
}

// Date builds a Parse func for a time field.
func Date[T any](set func(*T, time.Time)) func(*T, string) error {
	return func(dst *T, raw string) error {
		t, err := ParseTime(raw)
		if err != nil {
			return err
		}
		set(dst, t)
		return nil
	}
}

// UUID builds a Parse func for a uuid.UUID field.
func UUID[T any](set func(*T, uuid.UUID)) func(*T, string) error {
	return func(dst *T, raw string) error {
		id, err := ParseUUID(raw)
		if err != nil {
			return err
		}
		set(dst, id)
		return nil
	}
}
