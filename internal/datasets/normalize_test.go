package datasets

import "testing"

func TestNormalizeDepartmentCode(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		code string
		want string
	}{
		{name: "zero pads single digit", code: "1", want: "01"},
		{name: "keeps two digit", code: "75", want: "75"},
		{name: "uppercases corsica", code: "2a", want: "2A"},
		{name: "keeps overseas", code: "971", want: "971"},
		{name: "trims whitespace", code: " 13 ", want: "13"},
		{name: "empty input", code: "", want: ""},
		{name: "whitespace only", code: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDepartmentCode(tt.code); got != tt.want {
				t.Errorf("NormalizeDepartmentCode(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsOverseas(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		code string
		want bool
	}{
		{code: "75", want: false},
		{code: "2A", want: false},
		{code: "971", want: true},
		{code: "976", want: true},
		{code: "988", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := IsOverseas(tt.code); got != tt.want {
				t.Errorf("IsOverseas(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
