package utils

import "testing"

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ann@example.com", true},
		{" bob.smith+news@mail.example.org ", true},
		{"nobody", false},
		{"a@b", false},
		{"@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidEmail(tt.in); got != tt.want {
			t.Errorf("IsValidEmail(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
