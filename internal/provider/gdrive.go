package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

const (
	// DefaultDrivePageSize is the page size requested from files.list.
	DefaultDrivePageSize = 100

	driveListFields googleapi.Field = "nextPageToken, files(id, name, mimeType, modifiedTime)"

	driveFolderMime = "application/vnd.google-apps.folder"
	driveNativeMime = "application/vnd.google-apps."
	driveExportMime = "application/pdf"
)

// DriveOptions configures the Google Drive adapter.
type DriveOptions struct {
	PageSize  int64
	Limiter   *rate.Limiter
	CacheSize int
	// ClientOptions are appended when building each service.
	ClientOptions []option.ClientOption
}

// Drive lists and downloads Google Drive files.
type Drive struct {
	pageSize int64
	limiter  *rate.Limiter
	clients  *clientCache[*drive.Service]
}

// Verify interface implementation at compile time
var _ Provider = (*Drive)(nil)

// NewDrive creates the Google Drive adapter.
func NewDrive(opts DriveOptions) (*Drive, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultDrivePageSize
	}

	clients, err := newClientCache(opts.CacheSize, func(token string) (*drive.Service, error) {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		clientOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts.ClientOptions...)
		srv, err := drive.NewService(context.Background(), clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create drive client: %w", err)
		}
		return srv, nil
	})
	if err != nil {
		return nil, err
	}

	return &Drive{pageSize: pageSize, limiter: opts.Limiter, clients: clients}, nil
}

// Name returns StorageGoogleDrive.
func (d *Drive) Name() store.StorageType { return store.StorageGoogleDrive }

// List pages through files.list until nextPageToken is empty.
func (d *Drive) List(ctx context.Context, accessToken string) ([]RemoteObject, error) {
	srv, err := d.clients.get(accessToken)
	if err != nil {
		return nil, err
	}

	var (
		out       []RemoteObject
		pageToken string
	)
	for {
		if err := waitLimiter(ctx, d.limiter); err != nil {
			return nil, err
		}

		call := srv.Files.List().
			PageSize(d.pageSize).
			Fields(driveListFields).
			Q("trashed = false").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, classifyDrive(err)
		}
		for _, f := range res.Files {
			out = append(out, driveObject(f))
		}

		if res.NextPageToken == "" {
			return out, nil
		}
		pageToken = res.NextPageToken
	}
}

func driveObject(f *drive.File) RemoteObject {
	obj := RemoteObject{
		ID:       f.Id,
		Name:     f.Name,
		Path:     store.DrivePath(f.Id),
		IsFolder: f.MimeType == driveFolderMime,
		MimeType: f.MimeType,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		obj.Modified = t.UTC()
	}
	return obj
}

// Download streams the file. Google-native documents are exported as PDF.
func (d *Drive) Download(ctx context.Context, accessToken string, entry *store.Entry) (io.ReadCloser, error) {
	if entry.IsFolder {
		return nil, uferrors.ValidationError("folders cannot be downloaded", nil).
			WithDetail("path", entry.Path)
	}

	id := driveFileID(entry)
	srv, err := d.clients.get(accessToken)
	if err != nil {
		return nil, err
	}
	if err := waitLimiter(ctx, d.limiter); err != nil {
		return nil, err
	}

	if strings.HasPrefix(entry.MimeType, driveNativeMime) {
		resp, err := srv.Files.Export(id, driveExportMime).Context(ctx).Download()
		if err != nil {
			return nil, classifyDrive(err)
		}
		return resp.Body, nil
	}

	resp, err := srv.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, classifyDrive(err)
	}
	return resp.Body, nil
}

// WebURL opens the file viewer, or the folder view for folders.
func (d *Drive) WebURL(entry *store.Entry) string {
	id := driveFileID(entry)
	if entry.IsFolder {
		return "https://drive.google.com/drive/folders/" + id
	}
	return "https://drive.google.com/file/d/" + id + "/view"
}

func driveFileID(entry *store.Entry) string {
	if entry.CloudObjectID != "" {
		return entry.CloudObjectID
	}
	return strings.TrimPrefix(entry.Path, store.DriveScheme)
}

func classifyDrive(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyHTTP(store.StorageGoogleDrive, gerr.Code, err)
	}
	return classifyTransport(store.StorageGoogleDrive, err)
}

func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}
