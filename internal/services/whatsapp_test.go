package services

import (
	"testing"
)

func TestNormalizeChatID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "local number gets country code and suffix",
			input:    "081234567890",
			expected: "6281234567890@c.us",
		},
		{
			name:     "international number untouched",
			input:    "6281234567890",
			expected: "6281234567890@c.us",
		},
		{
			name:     "group id passes through",
			input:    "120363040512345678@g.us",
			expected: "120363040512345678@g.us",
		},
		{
			name:     "suffix stripped before normalization",
			input:    "081234567890@c.us",
			expected: "6281234567890@c.us",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  6281234567890  ",
			expected: "6281234567890@c.us",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeChatID(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeChatID(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}
