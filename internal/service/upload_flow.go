package service

import (
	"CloudVault/internal/common"
	"CloudVault/internal/dto"
	"CloudVault/internal/storage"
	"CloudVault/model"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	StepOptimize = "optimize"
	StepName     = "name"
	StepUpload   = "upload"
	StepPersist  = "persist"
	StepCleanup  = "cleanup"
)

// StepResult is the outcome of one step of an upload flow.
type StepResult struct {
	Step    string `json:"step"`
	Skipped bool   `json:"skipped,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// UploadReport lists the steps of a create or update flow. When the upload
// step succeeded and persist failed, Locator names the stored object so the
// caller can retry persisting alone.
type UploadReport struct {
	Version *model.FileVersion `json:"version,omitempty"`
	Locator string             `json:"locator,omitempty"`
	Steps   []StepResult       `json:"steps"`
	Warning string             `json:"warning,omitempty"`
}

func (r *UploadReport) ok(step string) {
	r.Steps = append(r.Steps, StepResult{Step: step})
}

func (r *UploadReport) skip(step string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Skipped: true})
}

func (r *UploadReport) fail(step string, err error) error {
	r.Steps = append(r.Steps, StepResult{Step: step, Err: err, Error: err.Error()})
	return err
}

// Failed returns the first failed step, if any.
func (r *UploadReport) Failed() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s, true
		}
	}
	return StepResult{}, false
}

func decodeBase64(p dto.Base64Payload) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", common.ErrInvalidPayload, err)
	}
	return data, nil
}

// extensionOf returns the lower-case extension of name without the dot.
func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// fillFromContent completes missing metadata from the content itself.
func fillFromContent(p *dto.FilePayload, mt *mimetype.MIME, size int64) {
	if p.MimeType == "" {
		p.MimeType = mt.String()
	}
	if p.Size <= 0 {
		p.Size = size
	}
	if p.Extension == "" {
		p.Extension = extensionOf(p.OriginalName)
	}
	if p.Extension == "" {
		p.Extension = strings.TrimPrefix(mt.Extension(), ".")
	}
	p.Extension = strings.ToLower(strings.TrimPrefix(p.Extension, "."))
}

func (s *FileVersionService) prepareBase64(ctx context.Context, p dto.Base64Payload, report *UploadReport) (dto.Base64Payload, []byte, error) {
	if p.Optimize && s.pipeline != nil {
		optimized, err := s.pipeline.OptimizeBase64(ctx, p)
		if err != nil {
			return p, nil, report.fail(StepOptimize, err)
		}
		p = optimized
		report.ok(StepOptimize)
	} else {
		report.skip(StepOptimize)
	}
	data, err := decodeBase64(p)
	if err != nil {
		return p, nil, report.fail(StepUpload, err)
	}
	fillFromContent(&p.FilePayload, mimetype.Detect(data), int64(len(data)))
	return p, data, nil
}

func (s *FileVersionService) prepareMultipart(ctx context.Context, p dto.MultipartPayload, report *UploadReport) (dto.MultipartPayload, error) {
	if p.OriginalName == "" {
		p.OriginalName = p.File.OriginalName
	}
	if p.Optimize && s.pipeline != nil {
		optimized, err := s.pipeline.OptimizeMultipart(ctx, p)
		if err != nil {
			return p, report.fail(StepOptimize, err)
		}
		p = optimized
		report.ok(StepOptimize)
	} else {
		report.skip(StepOptimize)
	}
	if p.File.Path == "" {
		return p, report.fail(StepUpload, fmt.Errorf("%w: multipart file has no path", common.ErrInvalidPayload))
	}
	size := p.File.Size
	if st, err := os.Stat(p.File.Path); err == nil {
		size = st.Size()
	}
	mt, err := mimetype.DetectFile(p.File.Path)
	if err != nil {
		return p, report.fail(StepUpload, fmt.Errorf("%w: read multipart file: %v", common.ErrInvalidPayload, err))
	}
	if p.MimeType == "" && p.File.MimeType != "" && p.File.MimeType != "application/octet-stream" {
		p.MimeType = p.File.MimeType
	}
	fillFromContent(&p.FilePayload, mt, size)
	return p, nil
}

// CreateFromBase64 optionally optimizes, names, uploads and persists a new
// version. Upload happens before persist and is not undone when persist fails.
func (s *FileVersionService) CreateFromBase64(ctx context.Context, p dto.Base64Payload) (*UploadReport, error) {
	report := &UploadReport{}
	p, data, err := s.prepareBase64(ctx, p, report)
	if err != nil {
		return report, err
	}
	return s.create(ctx, p.FilePayload, report, func(v *model.FileVersion) error {
		return s.backend.UploadBuffer(ctx, v, data)
	})
}

// CreateFromMultipart is CreateFromBase64 for a spooled multipart file.
func (s *FileVersionService) CreateFromMultipart(ctx context.Context, p dto.MultipartPayload) (*UploadReport, error) {
	report := &UploadReport{}
	p, err := s.prepareMultipart(ctx, p, report)
	if err != nil {
		return report, err
	}
	return s.create(ctx, p.FilePayload, report, func(v *model.FileVersion) error {
		return s.UploadMultipart(ctx, v, p)
	})
}

func (s *FileVersionService) create(ctx context.Context, p dto.FilePayload, report *UploadReport, upload func(*model.FileVersion) error) (*UploadReport, error) {
	v := model.NewFileVersion(p.OriginalName)
	v.IsPublic = p.IsPublic
	if err := applyNaming(v, p); err != nil {
		return report, report.fail(StepName, err)
	}
	if err := s.checkNameFree(ctx, v.ID, v.Name, p.IsPublic); err != nil {
		return report, report.fail(StepName, err)
	}
	loc := s.backend.Locate(v).String()
	if err := s.checkLocatorFree(ctx, v.ID, loc); err != nil {
		return report, report.fail(StepName, err)
	}
	report.ok(StepName)

	// The backend reads content metadata off the version.
	v.Extension = p.Extension
	v.MimeType = p.MimeType
	v.Size = p.Size
	if err := upload(v); err != nil {
		return report, report.fail(StepUpload, err)
	}
	report.ok(StepUpload)

	p.Path = loc
	report.Locator = p.Path
	saved, err := s.Persist(ctx, v, p.FileRepPayload)
	if err != nil {
		s.log.Error(ctx, "object uploaded but metadata not persisted", "version_id", v.ID, "locator", p.Path, "error", err)
		return report, report.fail(StepPersist, err)
	}
	report.ok(StepPersist)
	report.Version = saved
	s.log.Info(ctx, "file version created", "version_id", saved.ID, "locator", saved.Path)
	return report, nil
}

// UpdateFromBase64 replaces the content and metadata of an existing version.
// When the locator changes, the previous object is removed on a best-effort
// basis.
func (s *FileVersionService) UpdateFromBase64(ctx context.Context, id string, p dto.Base64Payload) (*UploadReport, error) {
	report := &UploadReport{}
	p, data, err := s.prepareBase64(ctx, p, report)
	if err != nil {
		return report, err
	}
	return s.replace(ctx, id, p.FilePayload, report, func(v *model.FileVersion) error {
		return s.backend.UploadBuffer(ctx, v, data)
	})
}

// UpdateFromMultipart is UpdateFromBase64 for a spooled multipart file.
func (s *FileVersionService) UpdateFromMultipart(ctx context.Context, id string, p dto.MultipartPayload) (*UploadReport, error) {
	report := &UploadReport{}
	p, err := s.prepareMultipart(ctx, p, report)
	if err != nil {
		return report, err
	}
	return s.replace(ctx, id, p.FilePayload, report, func(v *model.FileVersion) error {
		return s.UploadMultipart(ctx, v, p)
	})
}

func (s *FileVersionService) replace(ctx context.Context, id string, p dto.FilePayload, report *UploadReport, upload func(*model.FileVersion) error) (*UploadReport, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return report, report.fail(StepName, err)
	}
	defer release()

	v, err := s.GetOneVersion(ctx, id)
	if err != nil {
		return report, report.fail(StepName, err)
	}
	previous := *v
	if err := applyNaming(v, p); err != nil {
		return report, report.fail(StepName, err)
	}
	if err := s.checkNameFree(ctx, v.ID, v.Name, p.IsPublic); err != nil {
		return report, report.fail(StepName, err)
	}
	target := *v
	target.IsPublic = p.IsPublic
	target.Path = ""
	target.Extension = p.Extension
	target.MimeType = p.MimeType
	target.Size = p.Size
	loc := s.backend.Locate(&target)
	if err := s.checkLocatorFree(ctx, v.ID, loc.String()); err != nil {
		return report, report.fail(StepName, err)
	}
	report.ok(StepName)

	if err := upload(&target); err != nil {
		return report, report.fail(StepUpload, err)
	}
	report.ok(StepUpload)

	p.Path = loc.String()
	report.Locator = p.Path
	saved, err := s.Persist(ctx, v, p.FileRepPayload)
	if err != nil {
		s.log.Error(ctx, "object uploaded but metadata not persisted", "version_id", v.ID, "locator", p.Path, "error", err)
		return report, report.fail(StepPersist, err)
	}
	report.ok(StepPersist)
	report.Version = saved

	s.removePrevious(ctx, &previous, loc, report)
	s.log.Info(ctx, "file version updated", "version_id", saved.ID, "locator", saved.Path)
	return report, nil
}

// removePrevious drops the object a replaced version used to point at, unless
// it is the new object or another version still records it.
func (s *FileVersionService) removePrevious(ctx context.Context, previous *model.FileVersion, current storage.Locator, report *UploadReport) {
	old := s.backend.Locate(previous)
	if old == current {
		report.skip(StepCleanup)
		return
	}
	inUse, err := s.locatorInUse(ctx, previous.ID, old.String())
	if err != nil {
		report.fail(StepCleanup, err)
		report.Warning = fmt.Sprintf("previous object %s was not removed: %v", old, err)
		return
	}
	if inUse {
		s.log.Warn(ctx, "previous object still referenced, keeping it", "version_id", previous.ID, "locator", old.String())
		report.skip(StepCleanup)
		return
	}
	if err := s.backend.RemoveObjects(ctx, previous); err != nil {
		report.fail(StepCleanup, err)
		report.Warning = fmt.Sprintf("previous object %s was not removed: %v", old, err)
		s.reportOrphan(ctx, previous, err)
		return
	}
	report.ok(StepCleanup)
}
