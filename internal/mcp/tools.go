package mcp

import (
	"time"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"file or folder name to look for; prefixes and small typos match"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	Offset   int    `json:"offset,omitempty" jsonschema:"number of results to skip for pagination"`
	Service  string `json:"service,omitempty" jsonschema:"restrict to one source: local, google_drive or dropbox"`
	FileType string `json:"file_type,omitempty" jsonschema:"restrict to folder, document, image, video, audio, archive or code"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []EntryOutput `json:"results" jsonschema:"matching entries, local matches first"`
	Offset  int           `json:"offset"`
	Limit   int           `json:"limit"`
	HasMore bool          `json:"has_more" jsonschema:"true when a full page came back; request the next offset"`
}

// EntryOutput is one indexed file or folder.
type EntryOutput struct {
	Name         string `json:"name"`
	Path         string `json:"path" jsonschema:"local absolute path, drive://{id} or dropbox://{path}"`
	IsFolder     bool   `json:"is_folder"`
	StorageType  string `json:"storage_type"`
	MimeType     string `json:"mime_type,omitempty"`
	LastModified string `json:"last_modified,omitempty" jsonschema:"RFC 3339 timestamp"`
}

// StartCrawlInput defines the input schema for the start_crawl tool.
type StartCrawlInput struct {
	Roots []string `json:"roots,omitempty" jsonschema:"directories to index; defaults to the configured roots"`
}

// AcceptedOutput acknowledges work that continues in the background.
type AcceptedOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GetStatusInput defines the input schema for the get_status tool (no parameters).
type GetStatusInput struct{}

// StatusOutput defines the output schema for the get_status tool.
type StatusOutput struct {
	Status         string         `json:"status" jsonschema:"not_started, starting, in_progress or completed"`
	Scanned        int            `json:"scanned"`
	Added          int            `json:"added"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	LastError      string         `json:"last_error,omitempty"`
	Entries        map[string]int `json:"entries" jsonschema:"indexed entries per storage type"`
}

// SyncAccountInput defines the input schema for the sync_account tool.
type SyncAccountInput struct {
	AccountID string `json:"account_id" jsonschema:"id of a linked account, see list_accounts"`
	Provider  string `json:"provider" jsonschema:"google_drive or dropbox"`
}

// PathInput addresses one indexed entry.
type PathInput struct {
	Path string `json:"path" jsonschema:"path exactly as returned by search"`
}

// OpenOutput defines the output schema for the open tool.
type OpenOutput struct {
	Action string `json:"action" jsonschema:"revealed for local entries, url for cloud entries"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
}

// DownloadOutput defines the output schema for the download tool.
type DownloadOutput struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size" jsonschema:"bytes, -1 when unknown"`
	// Content is set for small text files.
	Content string `json:"content,omitempty"`
	// SavedPath is where the content can be read otherwise.
	SavedPath string `json:"saved_path,omitempty"`
}

// ListAccountsInput defines the input schema for the list_accounts tool (no parameters).
type ListAccountsInput struct{}

// AccountsOutput defines the output schema for the list_accounts tool.
type AccountsOutput struct {
	Accounts []AccountOutput `json:"accounts"`
}

// AccountOutput is one linked account without credentials.
type AccountOutput struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Email      string `json:"email"`
	LastSynced string `json:"last_synced,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
