package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// fakeDropboxFiles implements the endpoints the adapter uses.
type fakeDropboxFiles struct {
	files.Client
	pages     []*files.ListFolderResult
	cursors   []string
	recursive bool
	listErr   error
	download  map[string]string
}

func (f *fakeDropboxFiles) ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.recursive = arg.Recursive
	return f.pages[0], nil
}

func (f *fakeDropboxFiles) ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error) {
	f.cursors = append(f.cursors, arg.Cursor)
	return f.pages[len(f.cursors)], nil
}

func (f *fakeDropboxFiles) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	body, ok := f.download[arg.Path]
	if !ok {
		return nil, nil, errors.New("path/not_found/")
	}
	return &files.FileMetadata{}, io.NopCloser(strings.NewReader(body)), nil
}

func fileMeta(id, pathDisplay string, modified time.Time) *files.FileMetadata {
	m := &files.FileMetadata{Id: id, ServerModified: modified}
	m.Name = pathDisplay[strings.LastIndex(pathDisplay, "/")+1:]
	m.PathDisplay = pathDisplay
	return m
}

func folderMeta(id, pathDisplay string) *files.FolderMetadata {
	m := &files.FolderMetadata{Id: id}
	m.Name = pathDisplay[strings.LastIndex(pathDisplay, "/")+1:]
	m.PathDisplay = pathDisplay
	return m
}

func newTestDropbox(t *testing.T, fake *fakeDropboxFiles) *Dropbox {
	t.Helper()
	d, err := NewDropbox(DropboxOptions{})
	require.NoError(t, err)
	d.clients, err = newClientCache(1, func(string) (files.Client, error) { return fake, nil })
	require.NoError(t, err)
	return d
}

func TestDropbox_ListFollowsCursor(t *testing.T) {
	modified := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("CET", 3600))
	deleted := &files.DeletedMetadata{}
	deleted.Name = "old.txt"
	deleted.PathDisplay = "/old.txt"

	fake := &fakeDropboxFiles{pages: []*files.ListFolderResult{
		{
			Entries: []files.IsMetadata{folderMeta("id:w", "/Work"), fileMeta("id:r", "/Work/report.pdf", modified)},
			Cursor:  "c1",
			HasMore: true,
		},
		{
			Entries: []files.IsMetadata{deleted, fileMeta("id:p", "/Photos/cat.JPG", modified)},
			Cursor:  "c2",
			HasMore: false,
		},
	}}
	d := newTestDropbox(t, fake)

	objs, err := d.List(context.Background(), "token")
	require.NoError(t, err)

	// Then: both pages are read recursively and deletions are ignored
	assert.True(t, fake.recursive)
	assert.Equal(t, []string{"c1"}, fake.cursors)
	require.Len(t, objs, 3)

	assert.Equal(t, "dropbox:///Work", objs[0].Path)
	assert.True(t, objs[0].IsFolder)

	assert.Equal(t, "dropbox:///Work/report.pdf", objs[1].Path)
	assert.Equal(t, "id:r", objs[1].ID)
	assert.Equal(t, "application/pdf", objs[1].MimeType)
	assert.True(t, modified.Equal(objs[1].Modified))
	assert.Equal(t, time.UTC, objs[1].Modified.Location())

	assert.Equal(t, "image/jpeg", objs[2].MimeType)
}

func TestDropbox_ListErrorsAreClassified(t *testing.T) {
	tests := []struct {
		msg  string
		code string
	}{
		{msg: "too_many_requests/..", code: uferrors.ErrCodeProviderRateLimit},
		{msg: "expired_access_token/..", code: uferrors.ErrCodeTokenInvalid},
		{msg: "path/not_found/", code: uferrors.ErrCodeEntryNotFound},
		{msg: "something else", code: uferrors.ErrCodeSyncFailed},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			d := newTestDropbox(t, &fakeDropboxFiles{listErr: errors.New(tt.msg)})
			_, err := d.List(context.Background(), "token")
			assert.Equal(t, tt.code, uferrors.GetCode(err))
		})
	}
}

func TestDropbox_Download(t *testing.T) {
	fake := &fakeDropboxFiles{download: map[string]string{"/Work/report.pdf": "pdf bytes"}}
	d := newTestDropbox(t, fake)
	ctx := context.Background()

	rc, err := d.Download(ctx, "token", &store.Entry{Path: "dropbox:///Work/report.pdf"})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "pdf bytes", string(data))

	_, err = d.Download(ctx, "token", &store.Entry{Path: "dropbox:///missing.txt"})
	assert.True(t, uferrors.IsNotFound(err))

	_, err = d.Download(ctx, "token", &store.Entry{Path: "dropbox:///Work", IsFolder: true})
	assert.True(t, uferrors.IsValidation(err))
}

func TestDropbox_WebURL(t *testing.T) {
	d, err := NewDropbox(DropboxOptions{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		entry *store.Entry
		want  string
	}{
		{name: "nested file", entry: &store.Entry{Path: "dropbox:///Work/Q1/report.pdf"}, want: "https://www.dropbox.com/home/Work/Q1"},
		{name: "root file", entry: &store.Entry{Path: "dropbox:///todo.txt"}, want: "https://www.dropbox.com/home"},
		{name: "folder", entry: &store.Entry{Path: "dropbox:///Work", IsFolder: true}, want: "https://www.dropbox.com/home/Work"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.WebURL(tt.entry))
		})
	}
}
