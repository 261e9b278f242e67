package service

import (
	"CloudVault/internal/common"
	"CloudVault/internal/dto"
	"CloudVault/internal/logging"
	"CloudVault/internal/repo"
	"CloudVault/internal/storage"
	"CloudVault/model"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultPresignExpiry = time.Hour
	// MaxPresignExpiry is the longest expiry S3 accepts for a V4 signature.
	MaxPresignExpiry = 7 * 24 * time.Hour
)

// Optimizer re-encodes uploads before they reach the backend.
type Optimizer interface {
	OptimizeMultipart(ctx context.Context, in dto.MultipartPayload) (dto.MultipartPayload, error)
	OptimizeBase64(ctx context.Context, in dto.Base64Payload) (dto.Base64Payload, error)
}

// OrphanReporter is told about objects whose removal failed after their
// metadata was already gone.
type OrphanReporter interface {
	ReportOrphan(ctx context.Context, v *model.FileVersion, cause error) error
}

// Locker serializes mutations of one version across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Deps are the collaborators of FileVersionService. Repo and Backend are
// required; the rest may be nil.
type Deps struct {
	Repo          repo.VersionRepository
	Backend       storage.Backend
	Pipeline      Optimizer
	Orphans       OrphanReporter
	Locker        Locker
	Logger        logging.Logger
	Group         string
	PresignExpiry time.Duration
}

// FileVersionService coordinates version metadata with object storage.
type FileVersionService struct {
	repo          repo.VersionRepository
	backend       storage.Backend
	pipeline      Optimizer
	orphans       OrphanReporter
	locker        Locker
	log           logging.Logger
	group         string
	presignExpiry time.Duration
}

func NewFileVersionService(d Deps) *FileVersionService {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	expiry := d.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &FileVersionService{
		repo:          d.Repo,
		backend:       d.Backend,
		pipeline:      d.Pipeline,
		orphans:       d.Orphans,
		locker:        d.Locker,
		log:           logger.With("component", "file_version_service"),
		group:         d.Group,
		presignExpiry: expiry,
	}
}

// RemovalResult describes a completed delete. Warning is set when the
// metadata is gone but the object could not be removed.
type RemovalResult struct {
	Version        *model.FileVersion `json:"version"`
	Warning        string             `json:"warning,omitempty"`
	OrphanReported bool               `json:"orphan_reported"`
}

func (s *FileVersionService) lock(ctx context.Context, id string) (func(), error) {
	if s.locker == nil || id == "" {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, "version:"+id)
}

// GetOneVersion loads a version by ID.
func (s *FileVersionService) GetOneVersion(ctx context.Context, id string) (*model.FileVersion, error) {
	return s.repo.GetOne(ctx, id)
}

// Persist copies the payload's metadata onto v and saves it. It is the only
// metadata write path. An empty Path records the backend locator.
func (s *FileVersionService) Persist(ctx context.Context, v *model.FileVersion, p dto.FileRepPayload) (*model.FileVersion, error) {
	v.Extension = p.Extension
	v.Path = p.Path
	v.MimeType = p.MimeType
	v.Size = p.Size
	v.IsPublic = p.IsPublic
	if v.Path == "" {
		v.Path = s.backend.Locate(v).String()
	}
	if err := s.repo.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Update renames v according to the payload and persists it. The new
// (name, visibility) pair must not belong to another version.
func (s *FileVersionService) Update(ctx context.Context, v *model.FileVersion, p dto.FilePayload) (*model.FileVersion, error) {
	release, err := s.lock(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.update(ctx, v, p)
}

func (s *FileVersionService) update(ctx context.Context, v *model.FileVersion, p dto.FilePayload) (*model.FileVersion, error) {
	if err := applyNaming(v, p); err != nil {
		return nil, err
	}
	if err := s.checkNameFree(ctx, v.ID, v.Name, p.IsPublic); err != nil {
		return nil, err
	}
	return s.Persist(ctx, v, p.FileRepPayload)
}

func applyNaming(v *model.FileVersion, p dto.FilePayload) error {
	if p.OriginalName != "" {
		v.OriginalName = p.OriginalName
	}
	if p.Name != "" {
		v.Name = p.Name
	}
	return v.SetName(p.IsOriginalName)
}

// checkNameFree fails with ErrConflict when another version already uses
// (name, isPublic).
func (s *FileVersionService) checkNameFree(ctx context.Context, id, name string, isPublic bool) error {
	existing, err := s.repo.GetOneBy(ctx, repo.VersionQuery{Name: name, IsPublic: isPublic})
	switch {
	case errors.Is(err, common.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != id:
		return fmt.Errorf("%w: %q is already used", common.ErrConflict, name)
	}
	return nil
}

// checkLocatorFree fails with ErrConflict when another version's recorded
// path is loc. A renamed version keeps its path, so a new name can still
// resolve to an occupied object.
func (s *FileVersionService) checkLocatorFree(ctx context.Context, id, loc string) error {
	inUse, err := s.locatorInUse(ctx, id, loc)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: object %s belongs to another version", common.ErrConflict, loc)
	}
	return nil
}

// locatorInUse reports whether a live version other than id records loc.
func (s *FileVersionService) locatorInUse(ctx context.Context, id, loc string) (bool, error) {
	owner, err := s.repo.GetOneByPath(ctx, loc)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return owner.ID != id, nil
}

// UploadBuffer writes the decoded base64 content to the backend. It does not
// touch metadata.
func (s *FileVersionService) UploadBuffer(ctx context.Context, v *model.FileVersion, p dto.Base64Payload) error {
	data, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		return fmt.Errorf("%w: base64: %v", common.ErrInvalidPayload, err)
	}
	return s.backend.UploadBuffer(ctx, v, data)
}

// UploadMultipart streams the spooled multipart file to the backend.
func (s *FileVersionService) UploadMultipart(ctx context.Context, v *model.FileVersion, p dto.MultipartPayload) error {
	if p.File.Path == "" {
		return fmt.Errorf("%w: multipart file has no path", common.ErrInvalidPayload)
	}
	return s.backend.UploadPath(ctx, v, p.File.Path)
}

// Download returns the version with an open content stream.
func (s *FileVersionService) Download(ctx context.Context, id string) (*dto.FileVersionDTO, error) {
	v, err := s.GetOneVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	stream, err := s.backend.DownloadStream(ctx, v)
	if err != nil {
		return nil, err
	}
	return &dto.FileVersionDTO{Version: v, Stream: stream}, nil
}

// RemoveFile deletes the metadata first and then tries to remove the object.
// A failed object removal does not fail the call: it is logged, reported as
// an orphan and returned in the result's Warning.
func (s *FileVersionService) RemoveFile(ctx context.Context, id string) (*RemovalResult, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &RemovalResult{Version: v}
	loc := s.backend.Locate(v)
	inUse, err := s.locatorInUse(ctx, v.ID, loc.String())
	if err != nil {
		result.Warning = fmt.Sprintf("object %s was not removed: %v", loc, err)
		result.OrphanReported = s.reportOrphan(ctx, v, err)
		return result, nil
	}
	if inUse {
		s.log.Warn(ctx, "object still referenced, keeping it", "version_id", v.ID, "locator", loc.String())
		return result, nil
	}
	if err := s.backend.RemoveObjects(ctx, v); err != nil {
		result.Warning = fmt.Sprintf("object %s was not removed: %v", s.backend.Locate(v), err)
		result.OrphanReported = s.reportOrphan(ctx, v, err)
	}
	return result, nil
}

func (s *FileVersionService) reportOrphan(ctx context.Context, v *model.FileVersion, cause error) bool {
	loc := s.backend.Locate(v)
	s.log.Warn(ctx, "object left without metadata", "version_id", v.ID, "locator", loc.String(), "error", cause)
	if s.orphans == nil {
		return false
	}
	if err := s.orphans.ReportOrphan(ctx, v, cause); err != nil {
		s.log.Error(ctx, "report orphan failed", "version_id", v.ID, "locator", loc.String(), "error", err)
		return false
	}
	return true
}

// GetPresignedURL resolves the payload's name or ID and signs a download URL.
func (s *FileVersionService) GetPresignedURL(ctx context.Context, p dto.PresignPayload) (string, error) {
	v, err := s.ResolveLocator(ctx, p.Name, p.IsPublic)
	if err != nil {
		return "", err
	}
	return s.backend.PresignedGetURL(ctx, v, s.PresignExpiry(p.Expiry), storage.PresignMetadata{
		ContentType:   v.MimeType,
		ContentLength: v.Size,
	})
}

// PresignExpiry returns the expiry used for a request of seconds: the default
// when seconds is not positive, capped at MaxPresignExpiry.
func (s *FileVersionService) PresignExpiry(seconds int) time.Duration {
	if seconds <= 0 {
		return s.presignExpiry
	}
	d := time.Duration(seconds) * time.Second
	if d > MaxPresignExpiry {
		return MaxPresignExpiry
	}
	return d
}

// List pages through version metadata.
func (s *FileVersionService) List(ctx context.Context, c dto.Criteria) (*dto.Page, error) {
	return s.repo.List(ctx, c)
}

// ListObjects lists backend objects in the group bucket of the requested
// visibility, or in an explicit bucket.
func (s *FileVersionService) ListObjects(ctx context.Context, p dto.ListObjectsPayload) (storage.ListObjectsResult, error) {
	bucket := p.Bucket
	if bucket == "" {
		bucket = storage.BucketFor(s.group, p.IsPublic)
	}
	return s.backend.ListObjects(ctx, storage.ListQuery{
		Bucket:     bucket,
		Prefix:     p.Prefix,
		Recursive:  p.Recursive,
		MaxKeys:    p.MaxKeys,
		StartAfter: p.StartAfter,
	})
}
