package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// StatusInfo is the index status of one owner.
type StatusInfo struct {
	Owner     string         `json:"owner"`
	Phase     string         `json:"status,omitempty"`
	Scanned   int            `json:"scanned"`
	Added     int            `json:"added"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
	LastError string         `json:"last_error,omitempty"`
	Entries   map[string]int `json:"entries"`

	Accounts []AccountInfo `json:"accounts,omitempty"`

	// On-disk sizes in bytes.
	StoreSize  int64 `json:"store_size"`
	SearchSize int64 `json:"search_size"`

	SchedulerRunning bool `json:"scheduler_running"`
}

// AccountInfo is one linked account line.
type AccountInfo struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Email      string    `json:"email"`
	LastSynced time.Time `json:"last_synced,omitzero"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.Owner))

	if info.Phase != "" {
		_, _ = fmt.Fprintf(r.out, "  Crawl:   %s\n", r.renderPhase(info.Phase))
	}
	if info.Scanned > 0 || info.Added > 0 {
		_, _ = fmt.Fprintf(r.out, "  Scanned: %d, added %d in %s\n", info.Scanned, info.Added, formatDuration(info.Elapsed))
	}
	if info.LastError != "" {
		_, _ = fmt.Fprintf(r.out, "  Error:   %s\n", r.styles.Error.Render(info.LastError))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Entries:")
	sources := make([]string, 0, len(info.Entries))
	total := 0
	for s, n := range info.Entries {
		sources = append(sources, s)
		total += n
	}
	sort.Strings(sources)
	for _, s := range sources {
		_, _ = fmt.Fprintf(r.out, "    %-13s %d\n", s+":", info.Entries[s])
	}
	_, _ = fmt.Fprintf(r.out, "    %-13s %d\n", "total:", total)
	_, _ = fmt.Fprintln(r.out)

	if len(info.Accounts) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Accounts:")
		for _, a := range info.Accounts {
			synced := "never synced"
			if !a.LastSynced.IsZero() {
				synced = "synced " + formatTime(a.LastSynced)
			}
			_, _ = fmt.Fprintf(r.out, "    %s  %-12s %s  %s\n", a.ID, a.Provider, a.Email, r.styles.Label.Render(synced))
		}
		_, _ = fmt.Fprintln(r.out)
	}

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Store:  %s\n", FormatBytes(info.StoreSize))
	_, _ = fmt.Fprintf(r.out, "    Search: %s\n", FormatBytes(info.SearchSize))

	if info.SchedulerRunning {
		_, _ = fmt.Fprintf(r.out, "\n  Scheduler: %s\n", r.styles.Success.Render("running"))
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderPhase(phase string) string {
	switch phase {
	case "completed":
		return r.styles.Success.Render(phase)
	case "starting", "in_progress":
		return r.styles.Warning.Render(phase)
	default:
		return r.styles.Label.Render(phase)
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
