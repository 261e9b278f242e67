package service

import (
	"CloudVault/internal/dto"
	"CloudVault/internal/repo"
	"CloudVault/internal/storage"
	"CloudVault/model"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetOne(ctx context.Context, id string) (*model.FileVersion, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*model.FileVersion)
	return v, args.Error(1)
}

func (m *mockRepo) GetOneBy(ctx context.Context, q repo.VersionQuery) (*model.FileVersion, error) {
	args := m.Called(ctx, q)
	v, _ := args.Get(0).(*model.FileVersion)
	return v, args.Error(1)
}

func (m *mockRepo) GetOneByPath(ctx context.Context, path string) (*model.FileVersion, error) {
	args := m.Called(ctx, path)
	v, _ := args.Get(0).(*model.FileVersion)
	return v, args.Error(1)
}

func (m *mockRepo) Save(ctx context.Context, v *model.FileVersion) error {
	return m.Called(ctx, v).Error(0)
}

func (m *mockRepo) Delete(ctx context.Context, id string) (*model.FileVersion, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*model.FileVersion)
	return v, args.Error(1)
}

func (m *mockRepo) List(ctx context.Context, c dto.Criteria) (*dto.Page, error) {
	args := m.Called(ctx, c)
	p, _ := args.Get(0).(*dto.Page)
	return p, args.Error(1)
}

type mockBackend struct {
	mock.Mock
	group string
}

func (m *mockBackend) UploadBuffer(ctx context.Context, v *model.FileVersion, data []byte) error {
	return m.Called(ctx, v, data).Error(0)
}

func (m *mockBackend) UploadPath(ctx context.Context, v *model.FileVersion, localPath string) error {
	return m.Called(ctx, v, localPath).Error(0)
}

func (m *mockBackend) DownloadStream(ctx context.Context, v *model.FileVersion) (io.ReadCloser, error) {
	args := m.Called(ctx, v)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockBackend) PresignedGetURL(ctx context.Context, v *model.FileVersion, expiry time.Duration, meta storage.PresignMetadata) (string, error) {
	args := m.Called(ctx, v, expiry, meta)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) RemoveObjects(ctx context.Context, v *model.FileVersion) error {
	return m.Called(ctx, v).Error(0)
}

func (m *mockBackend) CreateBucket(ctx context.Context, name, region string) error {
	return m.Called(ctx, name, region).Error(0)
}

func (m *mockBackend) SetBucketPolicy(ctx context.Context, policy, bucket string) error {
	return m.Called(ctx, policy, bucket).Error(0)
}

func (m *mockBackend) ListObjects(ctx context.Context, q storage.ListQuery) (storage.ListObjectsResult, error) {
	args := m.Called(ctx, q)
	r, _ := args.Get(0).(storage.ListObjectsResult)
	return r, args.Error(1)
}

func (m *mockBackend) Locate(v *model.FileVersion) storage.Locator {
	return storage.Locate(m.group, v)
}

// flakyBackend wraps a real backend and fails object removal on demand.
type flakyBackend struct {
	storage.Backend
	removeErr error
}

func (b *flakyBackend) RemoveObjects(ctx context.Context, v *model.FileVersion) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	return b.Backend.RemoveObjects(ctx, v)
}

type orphanRecorder struct {
	mu      sync.Mutex
	orphans []string
	err     error
}

func (r *orphanRecorder) ReportOrphan(_ context.Context, v *model.FileVersion, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = append(r.orphans, v.ID)
	return r.err
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	svc     *FileVersionService
	repo    repo.VersionRepository
	local   *storage.LocalBackend
	backend *flakyBackend
	orphans *orphanRecorder
	clock   *clock
}

// newFixture wires the service over SQLite and the local backend.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repo.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	local, err := storage.NewLocalBackend(t.TempDir(), "assets", "http://files.test", "secret", storage.WithClock(c.Now))
	require.NoError(t, err)
	backend := &flakyBackend{Backend: local}
	orphans := &orphanRecorder{}
	r := repo.NewGormVersionRepository(db)

	svc := NewFileVersionService(Deps{
		Repo:     r,
		Backend:  backend,
		Pipeline: &fakeOptimizer{},
		Orphans:  orphans,
		Group:    "assets",
	})
	return &fixture{svc: svc, repo: r, local: local, backend: backend, orphans: orphans, clock: c}
}

// fakeOptimizer pretends to convert to WebP by tagging the content.
type fakeOptimizer struct {
	err error
}

func (f *fakeOptimizer) OptimizeBase64(_ context.Context, in dto.Base64Payload) (dto.Base64Payload, error) {
	if f.err != nil {
		return in, f.err
	}
	out := in
	out.Base64 = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="
	out.Extension = "webp"
	out.MimeType = "image/webp"
	out.Size = 34
	out.OriginalName = strings.TrimSuffix(in.OriginalName, "."+in.Extension) + ".webp"
	return out, nil
}

func (f *fakeOptimizer) OptimizeMultipart(_ context.Context, in dto.MultipartPayload) (dto.MultipartPayload, error) {
	return in, f.err
}
