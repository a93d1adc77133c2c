package excel

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    bool
		wantErr bool
	}{
		{"true word", "true", true, false},
		{"yes", "yes", true, false},
		{"y upper", "Y", true, false},
		{"one", "1", true, false},
		{"on", "on", true, false},
		{"false word", "false", false, false},
		{"no", "No", false, false},
		{"zero", "0", false, false},
		{"off", "OFF", false, false},
		{"padded", "  yes  ", true, false},
		{"garbage", "maybe", false, true},
		{"empty", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBool(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBool(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBool(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"plain", "42", 42, false},
		{"negative", "-7", -7, false},
		{"thousands separators", "1,234,567", 1234567, false},
		{"padded", " 10 ", 10, false},
		{"decimal point", "1.5", 0, true},
		{"text", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInt(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseInt(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInt(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseInt(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "19.99", "19.99", false},
		{"dollar sign", "$1,234.50", "1234.5", false},
		{"euro sign", "€99.00", "99", false},
		{"pound sign", "£5", "5", false},
		{"accounting negative", "(123.45)", "-123.45", false},
		{"accounting with symbol", "($ 50.00)", "-50", false},
		{"negative sign", "-2.5", "-2.5", false},
		{"text", "free", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimal(%q) expected error, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) unexpected error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"plain", "3.14", 3.14, false},
		{"integer", "42", 42, false},
		{"negative", "-0.5", -0.5, false},
		{"thousands separators", "1,234.5", 1234.5, false},
		{"padded", " 2.5 ", 2.5, false},
		{"text", "heavy", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFloat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFloat(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFloat(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseFloat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseUUID(t *testing.T) {
	want := uuid.MustParse("a2b4c6d8-1234-5678-9abc-def012345678")

	got, err := ParseUUID("  a2b4c6d8-1234-5678-9abc-def012345678  ")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if got != want {
		t.Errorf("ParseUUID = %s, want %s", got, want)
	}

	if _, err := ParseUUID("not-a-uuid"); err == nil {
		t.Error("ParseUUID accepted malformed input")
	}
	if _, err := ParseUUID(""); err == nil {
		t.Error("ParseUUID accepted empty input")
	}
}

func TestFloatAndUUIDAdapters(t *testing.T) {
	type row struct {
		Weight float64
		Ref    uuid.UUID
	}

	setWeight := Float(func(r *row, v float64) { r.Weight = v })
	setRef := UUID(func(r *row, v uuid.UUID) { r.Ref = v })

	var r row
	if err := setWeight(&r, "1,250.5"); err != nil {
		t.Fatalf("weight: %v", err)
	}
	if err := setRef(&r, "a2b4c6d8-1234-5678-9abc-def012345678"); err != nil {
		t.Fatalf("ref: %v", err)
	}
	if r.Weight != 1250.5 {
		t.Errorf("weight = %v, want 1250.5", r.Weight)
	}
	if r.Ref != uuid.MustParse("a2b4c6d8-1234-5678-9abc-def012345678") {
		t.Errorf("ref = %s", r.Ref)
	}

	if err := setWeight(&r, "light"); err == nil {
		t.Error("Float adapter accepted garbage")
	}
	if err := setRef(&r, "xyz"); err == nil {
		t.Error("UUID adapter accepted garbage")
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"iso date", "2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"slash date", "2024/01/15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"us date", "01/15/2024", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"timestamp", "2024-01-15 10:30:00", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), false},
		{"compact", "20240115", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false},
		{"nonsense", "someday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTime(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTime(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
