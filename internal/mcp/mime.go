package mcp

import (
	"path/filepath"
	"strings"
)

// textExtensions maps extensions of plain-text formats to MIME types.
var textExtensions = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".rst":  "text/x-rst",
	".csv":  "text/csv",
	".tsv":  "text/tab-separated-values",
	".log":  "text/plain",
	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".xml":  "text/xml",
	".toml": "text/x-toml",
	".ini":  "text/plain",
	".conf": "text/plain",
	".env":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".go":   "text/x-go",
	".py":   "text/x-python",
	".js":   "text/javascript",
	".ts":   "text/typescript",
	".sh":   "text/x-sh",
	".sql":  "text/x-sql",
	".c":    "text/x-c",
	".h":    "text/x-c",
	".java": "text/x-java",
	".rs":   "text/x-rust",
	".rb":   "text/x-ruby",
}

// specialFilenames maps extensionless text files to MIME types.
var specialFilenames = map[string]string{
	"Dockerfile": "text/x-dockerfile",
	"Makefile":   "text/x-makefile",
	"README":     "text/plain",
	"LICENSE":    "text/plain",
}

// textMIMEPrefixes are indexed MIME types that are readable as text.
var textMIMEPrefixes = []string{"text/", "application/json", "application/xml", "application/x-yaml"}

// TextMimeType returns the text MIME type of a file, or false when the
// content is not known to be text. The indexed MIME type wins over the name.
func TextMimeType(name, indexed string) (string, bool) {
	for _, prefix := range textMIMEPrefixes {
		if strings.HasPrefix(indexed, prefix) {
			return indexed, true
		}
	}
	if indexed != "" && !strings.HasPrefix(indexed, "application/octet-stream") {
		if _, ok := textExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			return "", false
		}
	}

	if mime, ok := specialFilenames[filepath.Base(name)]; ok {
		return mime, true
	}
	if mime, ok := textExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return mime, true
	}
	return "", false
}
