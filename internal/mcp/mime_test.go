package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextMimeType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		indexed  string
		expected string
		ok       bool
	}{
		{name: "markdown by name", file: "notes.md", expected: "text/markdown", ok: true},
		{name: "upper case extension", file: "TODO.TXT", expected: "text/plain", ok: true},
		{name: "go source", file: "main.go", expected: "text/x-go", ok: true},
		{name: "makefile", file: "Makefile", expected: "text/x-makefile", ok: true},
		{name: "indexed text wins", file: "data.bin", indexed: "text/csv", expected: "text/csv", ok: true},
		{name: "indexed json", file: "export", indexed: "application/json", expected: "application/json", ok: true},
		{name: "octet stream falls back to name", file: "a.yaml", indexed: "application/octet-stream", expected: "text/x-yaml", ok: true},
		{name: "pdf", file: "report.pdf", indexed: "application/pdf", ok: false},
		{name: "image", file: "photo.jpg", ok: false},
		{name: "no extension", file: "blob", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: detecting the text MIME type
			mime, ok := TextMimeType(tt.file, tt.indexed)

			// Then: only text content is reported
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, mime)
		})
	}
}
