package dto

import (
	"CloudVault/model"
	"io"
)

// FileVersionDTO pairs a version with its content. The consumer closes Stream.
type FileVersionDTO struct {
	Version *model.FileVersion
	Stream  io.ReadCloser
}

// Page is one page of versions.
type Page struct {
	Items    []model.FileVersion `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	LastPage int                 `json:"last_page"`
}

// PresignResponse is returned by the presigned URL endpoint.
type PresignResponse struct {
	URL    string `json:"url"`
	Expiry int    `json:"expiry"`
}
