package search

import (
	"path"
	"strconv"
	"strings"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// File type families accepted by Query.FileType.
const (
	FileTypeFolder   = "folder"
	FileTypeDocument = "document"
	FileTypeImage    = "image"
	FileTypeVideo    = "video"
	FileTypeAudio    = "audio"
	FileTypeArchive  = "archive"
	FileTypeCode     = "code"
)

// FileTypes lists the accepted families in display order.
var FileTypes = []string{
	FileTypeFolder, FileTypeDocument, FileTypeImage, FileTypeVideo,
	FileTypeAudio, FileTypeArchive, FileTypeCode,
}

var familyExtensions = map[string][]string{
	FileTypeDocument: {".pdf", ".doc", ".docx", ".odt", ".rtf", ".txt", ".md",
		".xls", ".xlsx", ".ods", ".csv", ".ppt", ".pptx", ".odp", ".pages", ".numbers", ".key"},
	FileTypeImage:   {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".heic", ".tiff", ".tif", ".raw"},
	FileTypeVideo:   {".mp4", ".mov", ".avi", ".mkv", ".webm", ".wmv", ".m4v", ".flv"},
	FileTypeAudio:   {".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a", ".wma", ".opus"},
	FileTypeArchive: {".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar", ".zst"},
	FileTypeCode: {".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".c", ".h", ".cpp", ".hpp",
		".rs", ".rb", ".php", ".cs", ".swift", ".kt", ".sh", ".sql", ".html", ".css", ".json", ".yaml", ".yml", ".toml"},
}

// mimePrefixes classifies cloud objects whose names lack an extension.
var mimePrefixes = map[string][]string{
	FileTypeDocument: {"application/pdf", "text/plain", "application/msword",
		"application/vnd.openxmlformats-officedocument", "application/vnd.ms-",
		"application/vnd.oasis.opendocument", "application/vnd.google-apps.document",
		"application/vnd.google-apps.spreadsheet", "application/vnd.google-apps.presentation"},
	FileTypeImage:   {"image/"},
	FileTypeVideo:   {"video/"},
	FileTypeAudio:   {"audio/"},
	FileTypeArchive: {"application/zip", "application/x-tar", "application/gzip", "application/x-7z", "application/x-rar"},
}

var extensionFamily = func() map[string]string {
	m := make(map[string]string)
	for family, exts := range familyExtensions {
		for _, ext := range exts {
			m[ext] = family
		}
	}
	return m
}()

// normalize validates q and fills defaults. maxLimit <= 0 means MaxLimit.
func normalize(q Query, defaultLimit, maxLimit int) (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, uferrors.ValidationError("search query is required", nil)
	}
	if q.OwnerID == "" {
		return q, uferrors.ValidationError("owner is required", nil)
	}
	if q.Offset < 0 {
		return q, uferrors.ValidationError("offset must not be negative", nil).
			WithDetail("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit < 0 {
		return q, uferrors.ValidationError("limit must not be negative", nil).
			WithDetail("limit", strconv.Itoa(q.Limit))
	}

	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	if q.Service != "" && !q.Service.Valid() {
		return q, uferrors.ValidationError("unknown service", nil).
			WithDetail("service", q.Service.String()).
			WithSuggestion("use local, google_drive or dropbox")
	}
	q.FileType = strings.ToLower(strings.TrimSpace(q.FileType))
	if q.FileType != "" && !validFileType(q.FileType) {
		return q, uferrors.ValidationError("unknown file type", nil).
			WithDetail("file_type", q.FileType).
			WithSuggestion("use one of: " + strings.Join(FileTypes, ", "))
	}
	return q, nil
}

func validFileType(ft string) bool {
	for _, t := range FileTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// FileFamily returns the family of an entry, or "" when it fits none.
func FileFamily(e *store.Entry) string {
	if e.IsFolder || e.MimeType == "application/vnd.google-apps.folder" {
		return FileTypeFolder
	}
	if fam, ok := extensionFamily[strings.ToLower(path.Ext(e.Name))]; ok {
		return fam
	}
	for _, fam := range FileTypes {
		for _, prefix := range mimePrefixes[fam] {
			if strings.HasPrefix(e.MimeType, prefix) {
				return fam
			}
		}
	}
	return ""
}

// applyFileType keeps results of the requested family.
func applyFileType(results []*Result, fileType string) []*Result {
	if fileType == "" {
		return results
	}
	filtered := results[:0]
	for _, r := range results {
		if FileFamily(r.Entry) == fileType {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// searchesBackend reports whether the full-text path can hold matches.
func searchesBackend(q Query) bool {
	return q.Service == "" || q.Service == store.StorageLocal
}

// cloudTypes returns the storage types the store path searches, or nil
// when it cannot hold matches.
func cloudTypes(q Query) []store.StorageType {
	switch q.Service {
	case "":
		return []store.StorageType{store.StorageGoogleDrive, store.StorageDropbox}
	case store.StorageLocal:
		return nil
	default:
		return []store.StorageType{q.Service}
	}
}
