package provider

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/time/rate"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// DropboxOptions configures the Dropbox adapter.
type DropboxOptions struct {
	Limiter   *rate.Limiter
	CacheSize int
	// HTTPClient carries the per-request timeout; the SDK has no context.
	HTTPClient *http.Client
}

// Dropbox lists and downloads Dropbox files.
type Dropbox struct {
	limiter *rate.Limiter
	clients *clientCache[files.Client]
}

// Verify interface implementation at compile time
var _ Provider = (*Dropbox)(nil)

// NewDropbox creates the Dropbox adapter.
func NewDropbox(opts DropboxOptions) (*Dropbox, error) {
	clients, err := newClientCache(opts.CacheSize, func(token string) (files.Client, error) {
		cfg := dropbox.Config{
			Token:    token,
			LogLevel: dropbox.LogOff,
			Client:   opts.HTTPClient,
		}
		return files.New(cfg), nil
	})
	if err != nil {
		return nil, err
	}
	return &Dropbox{limiter: opts.Limiter, clients: clients}, nil
}

// Name returns StorageDropbox.
func (d *Dropbox) Name() store.StorageType { return store.StorageDropbox }

// List walks the whole account recursively, following the cursor while
// the provider reports more entries. Deleted entries are ignored.
func (d *Dropbox) List(ctx context.Context, accessToken string) ([]RemoteObject, error) {
	client, err := d.clients.get(accessToken)
	if err != nil {
		return nil, err
	}

	if err := waitLimiter(ctx, d.limiter); err != nil {
		return nil, err
	}
	arg := files.NewListFolderArg("")
	arg.Recursive = true
	res, err := client.ListFolder(arg)
	if err != nil {
		return nil, classifyDropbox(err)
	}

	var out []RemoteObject
	for {
		for _, m := range res.Entries {
			if obj, ok := dropboxObject(m); ok {
				out = append(out, obj)
			}
		}
		if !res.HasMore {
			return out, nil
		}

		if err := waitLimiter(ctx, d.limiter); err != nil {
			return nil, err
		}
		res, err = client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, classifyDropbox(err)
		}
	}
}

func dropboxObject(m files.IsMetadata) (RemoteObject, bool) {
	switch f := m.(type) {
	case *files.FileMetadata:
		return RemoteObject{
			ID:       f.Id,
			Name:     f.Name,
			Path:     store.DropboxPath(f.PathDisplay),
			MimeType: mime.TypeByExtension(strings.ToLower(path.Ext(f.Name))),
			Modified: f.ServerModified.UTC(),
		}, true
	case *files.FolderMetadata:
		return RemoteObject{
			ID:       f.Id,
			Name:     f.Name,
			Path:     store.DropboxPath(f.PathDisplay),
			IsFolder: true,
		}, true
	}
	return RemoteObject{}, false
}

// Download streams the file at the entry's provider path.
func (d *Dropbox) Download(ctx context.Context, accessToken string, entry *store.Entry) (io.ReadCloser, error) {
	if entry.IsFolder {
		return nil, uferrors.ValidationError("folders cannot be downloaded", nil).
			WithDetail("path", entry.Path)
	}

	client, err := d.clients.get(accessToken)
	if err != nil {
		return nil, err
	}
	if err := waitLimiter(ctx, d.limiter); err != nil {
		return nil, err
	}

	_, body, err := client.Download(files.NewDownloadArg(dropboxProviderPath(entry)))
	if err != nil {
		return nil, classifyDropbox(err)
	}
	return body, nil
}

// WebURL opens the folder holding the entry, or the folder itself.
func (d *Dropbox) WebURL(entry *store.Entry) string {
	p := dropboxProviderPath(entry)
	if !entry.IsFolder {
		p = path.Dir(p)
	}
	if p == "/" || p == "." {
		p = ""
	}
	return "https://www.dropbox.com/home" + p
}

func dropboxProviderPath(entry *store.Entry) string {
	return strings.TrimPrefix(entry.Path, store.DropboxScheme)
}

// classifyDropbox maps SDK errors by their error summary; the SDK reports
// auth and rate-limit failures as distinct types per endpoint.
func classifyDropbox(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "too_many_requests"), strings.Contains(msg, "too_many_write_operations"):
		return uferrors.New(uferrors.ErrCodeProviderRateLimit, "provider rate limit", err).
			WithDetail("provider", store.StorageDropbox.String())
	case strings.Contains(msg, "invalid_access_token"), strings.Contains(msg, "expired_access_token"):
		return uferrors.New(uferrors.ErrCodeTokenInvalid, "provider rejected credentials", err).
			WithDetail("provider", store.StorageDropbox.String())
	case strings.Contains(msg, "not_found"):
		return uferrors.NotFoundError(fmt.Sprintf("object not found at provider: %s", msg)).
			WithDetail("provider", store.StorageDropbox.String())
	}
	return classifyTransport(store.StorageDropbox, err)
}
