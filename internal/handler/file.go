package handler

import (
	"CloudVault/internal/dto"
	"CloudVault/internal/logging"
	"CloudVault/internal/service"
	"CloudVault/utils"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// FileHandler serves the file version API.
type FileHandler struct {
	svc      *service.FileVersionService
	spoolDir string
	log      logging.Logger
}

// NewFileHandler returns a handler. Multipart uploads are spooled below
// spoolDir, or os.TempDir() when it is empty.
func NewFileHandler(svc *service.FileVersionService, spoolDir string, logger logging.Logger) *FileHandler {
	return &FileHandler{svc: svc, spoolDir: spoolDir, log: logger.With("component", "file_handler")}
}

// CreateBase64 stores a new version from a base64 body.
func (h *FileHandler) CreateBase64(c *gin.Context) {
	var req dto.Base64Payload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	report, err := h.svc.CreateFromBase64(c.Request.Context(), req)
	h.writeReport(c, report, err, http.StatusCreated)
}

// UpdateBase64 replaces the content of a version from a base64 body.
func (h *FileHandler) UpdateBase64(c *gin.Context) {
	var req dto.Base64Payload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	report, err := h.svc.UpdateFromBase64(c.Request.Context(), c.Param("id"), req)
	h.writeReport(c, report, err, http.StatusOK)
}

// CreateMultipart stores a new version from the "file" form field.
func (h *FileHandler) CreateMultipart(c *gin.Context) {
	h.multipart(c, func(p dto.MultipartPayload) (*service.UploadReport, error) {
		return h.svc.CreateFromMultipart(c.Request.Context(), p)
	}, http.StatusCreated)
}

// UpdateMultipart replaces the content of a version from the "file" form field.
func (h *FileHandler) UpdateMultipart(c *gin.Context) {
	h.multipart(c, func(p dto.MultipartPayload) (*service.UploadReport, error) {
		return h.svc.UpdateFromMultipart(c.Request.Context(), c.Param("id"), p)
	}, http.StatusOK)
}

// multipart spools the uploaded file into a per-request directory that is
// removed once the flow returns.
func (h *FileHandler) multipart(c *gin.Context, run func(dto.MultipartPayload) (*service.UploadReport, error), okStatus int) {
	var req dto.MultipartPayload
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "missing file"})
		return
	}

	dir, err := os.MkdirTemp(h.spoolDir, "upload-*")
	if err != nil {
		h.log.Error(c.Request.Context(), "create spool dir failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": -1, "msg": "upload failed"})
		return
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "content")
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		h.log.Error(c.Request.Context(), "spool upload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": -1, "msg": "upload failed"})
		return
	}
	req.File = dto.MultipartFile{
		FieldName:    "file",
		OriginalName: fh.Filename,
		Encoding:     fh.Header.Get("Content-Transfer-Encoding"),
		MimeType:     fh.Header.Get("Content-Type"),
		Destination:  dir,
		FileName:     filepath.Base(dst),
		Path:         dst,
		Size:         fh.Size,
	}
	report, err := run(req)
	h.writeReport(c, report, err, okStatus)
}

func (h *FileHandler) writeReport(c *gin.Context, report *service.UploadReport, err error, okStatus int) {
	if err != nil {
		if report != nil {
			if step, failed := report.Failed(); failed {
				h.log.Warn(c.Request.Context(), "upload flow failed", "step", step.Step, "locator", report.Locator, "error", err)
			}
			utils.FailWith(c, err, report)
			return
		}
		utils.Fail(c, err)
		return
	}
	c.JSON(okStatus, gin.H{"code": 0, "msg": "ok", "data": report})
}

// Get returns the metadata of one version.
func (h *FileHandler) Get(c *gin.Context) {
	v, err := h.svc.GetOneVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, v)
}

type renameRequest struct {
	OriginalName   string `json:"original_name"`
	IsOriginalName bool   `json:"is_original_name"`
	Name           string `json:"name"`
}

// Rename changes the naming fields of a version. The stored object keeps its
// recorded path.
func (h *FileHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	v, err := h.svc.GetOneVersion(ctx, c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	p := dto.FilePayload{
		FileRepPayload: dto.FileRepPayload{
			Extension: v.Extension,
			Path:      v.Path,
			MimeType:  v.MimeType,
			Size:      v.Size,
			IsPublic:  v.IsPublic,
		},
		OriginalName:   req.OriginalName,
		IsOriginalName: req.IsOriginalName,
		Name:           req.Name,
	}
	updated, err := h.svc.Update(ctx, v, p)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, updated)
}

// List pages through version metadata.
func (h *FileHandler) List(c *gin.Context) {
	var req dto.Criteria
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	page, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, page)
}

// Download streams the content of a version.
func (h *FileHandler) Download(c *gin.Context) {
	file, err := h.svc.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	defer file.Stream.Close()

	v := file.Version
	contentType := v.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := v.OriginalName
	if name == "" {
		name = v.Name
	}
	c.Header("Content-Disposition", utils.ContentDisposition(name))
	c.Header("Content-Type", contentType)
	if v.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(v.Size, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file.Stream); err != nil {
		h.log.Warn(c.Request.Context(), "download interrupted", "version_id", v.ID, "error", err)
	}
}

// Delete removes a version. A stored object that could not be removed is
// reported in "warning" while the call still succeeds.
func (h *FileHandler) Delete(c *gin.Context) {
	result, err := h.svc.RemoveFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{
		"version":         result.Version,
		"warning":         result.Warning,
		"orphan_reported": result.OrphanReported,
	})
}

// Presign returns a time-limited download URL for a version ID or name.
func (h *FileHandler) Presign(c *gin.Context) {
	var req dto.PresignPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	url, err := h.svc.GetPresignedURL(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, dto.PresignResponse{URL: url, Expiry: int(h.svc.PresignExpiry(req.Expiry) / time.Second)})
}

// ListObjects lists stored objects of a bucket.
func (h *FileHandler) ListObjects(c *gin.Context) {
	var req dto.ListObjectsPayload
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	result, err := h.svc.ListObjects(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, result)
}

// CreateBucket provisions a bucket group.
func (h *FileHandler) CreateBucket(c *gin.Context) {
	var req dto.CreateBucketPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": -1, "msg": "invalid request: " + err.Error()})
		return
	}
	report, err := h.svc.CreateBucket(c.Request.Context(), req)
	if err != nil {
		if report != nil && len(report.Steps) > 1 {
			h.log.Warn(c.Request.Context(), "bucket group partially provisioned", "group", report.Group, "state", string(report.State), "error", err)
			utils.FailWith(c, err, report)
			return
		}
		utils.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 0, "msg": "ok", "data": report})
}
