package service

import (
	"CloudVault/internal/common"
	"CloudVault/internal/dto"
	"CloudVault/internal/storage"
	"CloudVault/model"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fileRep(ext string, public bool) dto.FileRepPayload {
	return dto.FileRepPayload{Extension: ext, MimeType: "text/plain", Size: 5, IsPublic: public}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// storeVersion uploads content and persists a version named name.
func storeVersion(t *testing.T, f *fixture, name string, public bool, content string) *model.FileVersion {
	t.Helper()
	ctx := context.Background()
	v := model.NewFileVersion(name)
	require.NoError(t, v.SetName(true))
	v.IsPublic = public
	require.NoError(t, f.svc.UploadBuffer(ctx, v, dto.Base64Payload{Base64: b64(content)}))
	saved, err := f.svc.Persist(ctx, v, dto.FileRepPayload{Extension: "txt", MimeType: "text/plain", Size: int64(len(content)), IsPublic: public})
	require.NoError(t, err)
	return saved
}

func TestPersistCopiesFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := model.NewFileVersion("photo.png")
	require.NoError(t, v.SetName(false))

	p := dto.FileRepPayload{Extension: "png", Path: "assets.public/custom.png", MimeType: "image/png", Size: 123, IsPublic: true}
	saved, err := f.svc.Persist(ctx, v, p)
	require.NoError(t, err)

	got, err := f.svc.GetOneVersion(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Extension, got.Extension)
	assert.Equal(t, p.Path, got.Path)
	assert.Equal(t, p.MimeType, got.MimeType)
	assert.Equal(t, p.Size, got.Size)
	assert.True(t, got.IsPublic)

	// Persisting the same payload twice leaves one identical row.
	_, err = f.svc.Persist(ctx, got, p)
	require.NoError(t, err)
	page, err := f.svc.List(ctx, dto.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, p.Path, page.Items[0].Path)
}

func TestPersistRecordsLocatorWhenPathEmpty(t *testing.T) {
	f := newFixture(t)
	v := model.NewFileVersion("a.txt")
	require.NoError(t, v.SetName(true))
	saved, err := f.svc.Persist(context.Background(), v, fileRep("txt", true))
	require.NoError(t, err)
	assert.Equal(t, "assets.public/a.txt", saved.Path)
}

func TestUpdateNaming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := model.NewFileVersion("first.txt")
	require.NoError(t, v.SetName(false))
	generated := v.Name
	_, err := f.svc.Persist(ctx, v, fileRep("txt", false))
	require.NoError(t, err)

	// false keeps the existing name.
	updated, err := f.svc.Update(ctx, v, dto.FilePayload{OriginalName: "second.txt", FileRepPayload: fileRep("txt", false)})
	require.NoError(t, err)
	assert.Equal(t, generated, updated.Name)
	assert.Equal(t, "second.txt", updated.OriginalName)

	// true takes the original name.
	updated, err = f.svc.Update(ctx, v, dto.FilePayload{OriginalName: "second.txt", IsOriginalName: true, FileRepPayload: fileRep("txt", false)})
	require.NoError(t, err)
	assert.Equal(t, "second.txt", updated.Name)

	// An explicit name wins when isOriginalName is false.
	updated, err = f.svc.Update(ctx, v, dto.FilePayload{Name: "explicit.txt", FileRepPayload: fileRep("txt", false)})
	require.NoError(t, err)
	assert.Equal(t, "explicit.txt", updated.Name)

	_, err = f.svc.Update(ctx, v, dto.FilePayload{Name: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", FileRepPayload: fileRep("txt", false)})
	assert.ErrorIs(t, err, common.ErrInvalidName)
}

func TestUpdateConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	taken := storeVersion(t, f, "taken.txt", true, "a")
	other := storeVersion(t, f, "other.txt", true, "b")

	_, err := f.svc.Update(ctx, other, dto.FilePayload{OriginalName: "taken.txt", IsOriginalName: true, FileRepPayload: fileRep("txt", true)})
	assert.ErrorIs(t, err, common.ErrConflict)

	// Same name with the other visibility is free.
	other, err = f.svc.GetOneVersion(ctx, other.ID)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, other, dto.FilePayload{OriginalName: "taken.txt", IsOriginalName: true, FileRepPayload: fileRep("txt", false)})
	require.NoError(t, err)

	// Re-saving a version under its own name is not a conflict.
	_, err = f.svc.Update(ctx, taken, dto.FilePayload{IsOriginalName: true, FileRepPayload: fileRep("txt", true)})
	require.NoError(t, err)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	v := storeVersion(t, f, "hello.txt", false, "hello")

	out, err := f.svc.Download(context.Background(), v.ID)
	require.NoError(t, err)
	defer out.Stream.Close()
	data, err := io.ReadAll(out.Stream)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, v.ID, out.Version.ID)

	_, err = f.svc.Download(context.Background(), "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUploadBufferRejectsBadBase64(t *testing.T) {
	f := newFixture(t)
	v := model.NewFileVersion("x.txt")
	require.NoError(t, v.SetName(true))
	err := f.svc.UploadBuffer(context.Background(), v, dto.Base64Payload{Base64: "%%%"})
	assert.ErrorIs(t, err, common.ErrInvalidPayload)
}

func TestRemoveFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := storeVersion(t, f, "bye.txt", true, "bye")

	result, err := f.svc.RemoveFile(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.Equal(t, v.ID, result.Version.ID)

	_, err = f.svc.GetOneVersion(ctx, v.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, _, err = f.local.Open(storage.Locator{Bucket: "assets.public", Key: "bye.txt"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.svc.RemoveFile(ctx, v.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRemoveFileBackendFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := storeVersion(t, f, "stuck.txt", false, "stuck")
	f.backend.removeErr = errors.Join(common.ErrStorageUnavailable, errors.New("disk offline"))

	result, err := f.svc.RemoveFile(ctx, v.ID)
	require.NoError(t, err)
	assert.Contains(t, result.Warning, "assets.private/stuck.txt")
	assert.True(t, result.OrphanReported)
	assert.Equal(t, []string{v.ID}, f.orphans.orphans)

	// Metadata is gone even though the object remains.
	_, err = f.svc.GetOneVersion(ctx, v.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, _, err = f.local.Open(storage.Locator{Bucket: "assets.private", Key: "stuck.txt"})
	assert.NoError(t, err)
}

func TestRemoveFileDeletesMetadataFirst(t *testing.T) {
	r := &mockRepo{}
	b := &mockBackend{group: "assets"}
	svc := NewFileVersionService(Deps{Repo: r, Backend: b, Group: "assets"})
	v := &model.FileVersion{ID: "id-1", Name: "n.txt"}

	var order []string
	r.On("Delete", mock.Anything, "id-1").Return(v, nil).Run(func(mock.Arguments) { order = append(order, "delete") })
	r.On("GetOneByPath", mock.Anything, "assets.private/n.txt").Return(nil, common.ErrNotFound)
	b.On("RemoveObjects", mock.Anything, v).Return(nil).Run(func(mock.Arguments) { order = append(order, "remove") })

	_, err := svc.RemoveFile(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"delete", "remove"}, order)
}

func TestRemoveFileMetadataErrorSkipsBackend(t *testing.T) {
	r := &mockRepo{}
	b := &mockBackend{group: "assets"}
	svc := NewFileVersionService(Deps{Repo: r, Backend: b})
	r.On("Delete", mock.Anything, "id-1").Return(nil, common.ErrNotFound)

	_, err := svc.RemoveFile(context.Background(), "id-1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	b.AssertNotCalled(t, "RemoveObjects", mock.Anything, mock.Anything)
}

func TestGetPresignedURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := storeVersion(t, f, "signed.txt", true, "signed")

	raw, err := f.svc.GetPresignedURL(ctx, dto.PresignPayload{Name: "signed.txt", Expiry: 3600, IsPublic: true})
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "3600", u.Query().Get(storage.ParamExpires))

	loc := storage.Locator{Bucket: "assets.public", Key: v.Name}
	token := u.Query().Get(storage.ParamSignature)
	meta, err := f.local.VerifyPresigned(loc, token)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, int64(len("signed")), meta.ContentLength)

	f.clock.now = f.clock.now.Add(3600*time.Second + time.Second)
	_, err = f.local.VerifyPresigned(loc, token)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)

	_, err = f.svc.GetPresignedURL(ctx, dto.PresignPayload{Name: "signed.txt", IsPublic: false})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPresignExpiry(t *testing.T) {
	svc := NewFileVersionService(Deps{PresignExpiry: 15 * time.Minute})
	assert.Equal(t, 15*time.Minute, svc.PresignExpiry(0))
	assert.Equal(t, 15*time.Minute, svc.PresignExpiry(-5))
	assert.Equal(t, time.Minute, svc.PresignExpiry(60))
	assert.Equal(t, MaxPresignExpiry, svc.PresignExpiry(30*24*3600))
}

func TestListObjectsDerivesBucket(t *testing.T) {
	b := &mockBackend{group: "assets"}
	svc := NewFileVersionService(Deps{Repo: &mockRepo{}, Backend: b, Group: "assets"})
	b.On("ListObjects", mock.Anything, storage.ListQuery{Bucket: "assets.private", Prefix: "img/", MaxKeys: 10}).
		Return(storage.ListObjectsResult{}, nil).Once()
	b.On("ListObjects", mock.Anything, storage.ListQuery{Bucket: "other", Recursive: true}).
		Return(storage.ListObjectsResult{}, nil).Once()

	_, err := svc.ListObjects(context.Background(), dto.ListObjectsPayload{Prefix: "img/", MaxKeys: 10})
	require.NoError(t, err)
	_, err = svc.ListObjects(context.Background(), dto.ListObjectsPayload{Bucket: "other", Recursive: true, IsPublic: true})
	require.NoError(t, err)
	b.AssertExpectations(t)
}

type stubLocker struct {
	acquired []string
	released int
	err      error
}

func (l *stubLocker) Acquire(_ context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

func TestMutationsTakeTheVersionLock(t *testing.T) {
	r := &mockRepo{}
	b := &mockBackend{group: "assets"}
	locker := &stubLocker{}
	svc := NewFileVersionService(Deps{Repo: r, Backend: b, Locker: locker, Group: "assets"})
	v := &model.FileVersion{ID: "id-1", Name: "n.txt"}
	r.On("Delete", mock.Anything, "id-1").Return(v, nil)
	r.On("GetOneByPath", mock.Anything, mock.Anything).Return(nil, common.ErrNotFound)
	b.On("RemoveObjects", mock.Anything, v).Return(nil)

	_, err := svc.RemoveFile(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"version:id-1"}, locker.acquired)
	assert.Equal(t, 1, locker.released)

	locker.err = common.ErrConflict
	_, err = svc.RemoveFile(context.Background(), "id-1")
	assert.ErrorIs(t, err, common.ErrConflict)
	r.AssertNumberOfCalls(t, "Delete", 1)
}
