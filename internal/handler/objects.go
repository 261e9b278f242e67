package handler

import (
	"CloudVault/internal/storage"
	"CloudVault/utils"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// ObjectHandler serves presigned URLs issued by the local backend.
type ObjectHandler struct {
	local *storage.LocalBackend
}

func NewObjectHandler(local *storage.LocalBackend) *ObjectHandler {
	return &ObjectHandler{local: local}
}

// Serve checks the signature against the requested bucket and key and streams
// the object. Range requests are honored.
func (h *ObjectHandler) Serve(c *gin.Context) {
	loc := storage.Locator{
		Bucket: c.Param("bucket"),
		Key:    strings.TrimPrefix(c.Param("key"), "/"),
	}
	meta, err := h.local.VerifyPresigned(loc, c.Query(storage.ParamSignature))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	f, info, err := h.local.Open(loc)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	defer f.Close()

	if meta.ContentType != "" {
		c.Header("Content-Type", meta.ContentType)
	}
	c.Header("Content-Disposition", utils.ContentDisposition(path.Base(loc.Key)))
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}
