package ui

import (
	"fmt"
	"io"

	"github.com/Aman-CERP/unifind/internal/search"
	"github.com/Aman-CERP/unifind/internal/store"
)

// ResultsRenderer prints search results one per line.
type ResultsRenderer struct {
	out    io.Writer
	styles Styles
}

// NewResultsRenderer creates a search results renderer.
func NewResultsRenderer(out io.Writer, noColor bool) *ResultsRenderer {
	return &ResultsRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints resp. Folders end in a slash.
func (r *ResultsRenderer) Render(query string, resp *search.Response) {
	if resp == nil || len(resp.Results) == 0 {
		_, _ = fmt.Fprintf(r.out, "No files found for %q\n", query)
		return
	}

	for _, res := range resp.Results {
		name := res.Name
		if res.IsFolder {
			name += "/"
		}
		_, _ = fmt.Fprintf(r.out, "%s  %s  %s\n",
			r.badge(res.StorageType), r.styles.Value.Render(name), r.styles.Label.Render(res.Path))
	}

	if resp.HasMore {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render(
			fmt.Sprintf("more results: --offset %d", resp.Offset+resp.Limit)))
	}
}

func (r *ResultsRenderer) badge(t store.StorageType) string {
	switch t {
	case store.StorageGoogleDrive:
		return r.styles.Drive.Render("[drive]  ")
	case store.StorageDropbox:
		return r.styles.Dropbox.Render("[dropbox]")
	default:
		return r.styles.Local.Render("[local]  ")
	}
}
