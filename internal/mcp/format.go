package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/unifind/internal/search"
	"github.com/Aman-CERP/unifind/internal/store"
)

// FormatSearchResults formats a search response as markdown.
func FormatSearchResults(query string, resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		return fmt.Sprintf("No files found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Files matching \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Showing %d result", len(resp.Results))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	if resp.Offset > 0 {
		fmt.Fprintf(&sb, " from offset %d", resp.Offset)
	}
	sb.WriteString("\n\n")

	for i, r := range resp.Results {
		formatResult(&sb, resp.Offset+i+1, r)
	}

	if resp.HasMore {
		fmt.Fprintf(&sb, "\nMore results available: search again with offset %d.\n", resp.Offset+resp.Limit)
	}
	return sb.String()
}

// formatResult formats a single result line.
func formatResult(sb *strings.Builder, num int, r *search.Result) {
	kind := "file"
	if r.IsFolder {
		kind = "folder"
	}
	fmt.Fprintf(sb, "%d. **%s** (%s, %s)\n   `%s`", num, r.Name, kind, sourceLabel(r.StorageType), r.Path)
	if !r.LastModified.IsZero() {
		fmt.Fprintf(sb, " modified %s", r.LastModified.UTC().Format("2006-01-02"))
	}
	sb.WriteString("\n")
}

func sourceLabel(t store.StorageType) string {
	switch t {
	case store.StorageGoogleDrive:
		return "Google Drive"
	case store.StorageDropbox:
		return "Dropbox"
	default:
		return "local"
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToEntryOutput converts a search result to the tool output format.
func ToEntryOutput(r *search.Result) EntryOutput {
	if r == nil || r.Entry == nil {
		return EntryOutput{}
	}
	return EntryOutput{
		Name:         r.Name,
		Path:         r.Path,
		IsFolder:     r.IsFolder,
		StorageType:  r.StorageType.String(),
		MimeType:     r.MimeType,
		LastModified: formatTime(r.LastModified),
	}
}
