package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  kafka-1:9092  ", "kafka-2:9092  "},
			expected: []string{"kafka-1:9092", "kafka-2:9092"},
		},
		{
			name:     "removes duplicates and blanks preserving order",
			input:    []string{"a", "", "b", " a ", "   "},
			expected: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeFirstSeen(t *testing.T) {
	t.Run("nil input yields empty slice", func(t *testing.T) {
		got := DedupeFirstSeen(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("keeps first occurrence and drops empties", func(t *testing.T) {
		got := DedupeFirstSeen([]string{"lorraine@hillvalley.edu", "", "mcfly@hillvalley.edu", "lorraine@hillvalley.edu"})
		assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, got)
	})

	t.Run("compares verbatim", func(t *testing.T) {
		got := DedupeFirstSeen([]string{"A@x.io", "a@x.io"})
		assert.Equal(t, []string{"A@x.io", "a@x.io"}, got)
	})
}

func TestPromoteToFront(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		first    string
		expected []string
	}{
		{name: "already first", input: []string{"a", "b", "c"}, first: "a", expected: []string{"a", "b", "c"}},
		{name: "moves from middle", input: []string{"a", "b", "c"}, first: "b", expected: []string{"b", "a", "c"}},
		{name: "moves from end", input: []string{"a", "b", "c"}, first: "c", expected: []string{"c", "a", "b"}},
		{name: "absent value", input: []string{"a", "b"}, first: "z", expected: []string{"a", "b"}},
		{name: "empty value", input: []string{"a", "b"}, first: "", expected: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PromoteToFront(tt.input, tt.first))
		})
	}
}
