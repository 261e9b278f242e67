package utils

import (
	"CloudVault/internal/common"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// Fail writes an error JSON response with the status matching err.
func Fail(c *gin.Context, err error) {
	FailWith(c, err, nil)
}

// FailWith is Fail with a partial result attached, e.g. a step report.
func FailWith(c *gin.Context, err error, data interface{}) {
	body := gin.H{
		"code": -1,
		"msg":  err.Error(),
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(StatusOf(err), body)
}

// StatusOf maps the error taxonomy to HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrPartialProvisioning):
		return http.StatusMultiStatus
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidName), errors.Is(err, common.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrEncodingFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
