package utils

import (
	"CloudVault/internal/common"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{common.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: name taken", common.ErrConflict), http.StatusConflict},
		{common.ErrInvalidName, http.StatusBadRequest},
		{common.ErrInvalidPayload, http.StatusBadRequest},
		{errors.Join(common.ErrPermissionDenied, errors.New("AccessDenied")), http.StatusForbidden},
		{common.ErrEncodingFailed, http.StatusUnprocessableEntity},
		{common.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: stopped: %w", common.ErrPartialProvisioning, common.ErrStorageUnavailable), http.StatusMultiStatus},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusOf(c.err), c.err.Error())
	}
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, "attachment; filename=a.txt", ContentDisposition("a.txt"))
	assert.Equal(t, `attachment; filename="my file.txt"`, ContentDisposition("my \"file\".txt"))
	assert.Equal(t, "attachment; filename*=utf-8''%C3%A9t%C3%A9.txt", ContentDisposition("été.txt"))
	assert.Equal(t, "attachment; filename=download", ContentDisposition("  "))
}
