package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapses spaces and blank lines", "Hello   world.\n\n\n\nBye", "Hello world.\n\nBye"},
		{"empty", "", ""},
		{"whitespace only", " \t\n\r\n  ", ""},
		{"crlf", "line one\r\nline two\rline three", "line one\nline two\nline three"},
		{"tabs and nbsp", "a\t\tb  c", "a b c"},
		{"spaces around breaks", "first  \n   second", "first\nsecond"},
		{"blank lines with spaces", "para one\n \n \n \npara two", "para one\n\npara two"},
		{"keeps single paragraph break", "a\n\nb", "a\n\nb"},
		{"trims", "   padded text   ", "padded text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	input := "  Title\r\n\r\n\r\nBody   text\twith\n\n\n\nbreaks  "
	once := NormalizeText(input)
	assert.Equal(t, once, NormalizeText(once))
}
