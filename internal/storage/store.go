package storage

import (
	"CloudVault/model"
	"context"
	"io"
	"time"
)

// PresignMetadata is advisory metadata handed to the backend's signing call.
type PresignMetadata struct {
	ContentType   string
	ContentLength int64
}

// ListQuery describes one page of an object listing.
type ListQuery struct {
	Bucket     string
	Prefix     string
	Recursive  bool
	MaxKeys    int
	StartAfter string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// ListObjectsResult is one page of objects; NextStartAfter feeds the next query.
type ListObjectsResult struct {
	Objects        []ObjectInfo `json:"objects"`
	NextStartAfter string       `json:"next_start_after,omitempty"`
	IsTruncated    bool         `json:"is_truncated"`
}

const defaultMaxKeys = 1000

// Backend abstracts object storage for file versions.
type Backend interface {
	UploadBuffer(ctx context.Context, v *model.FileVersion, data []byte) error
	// UploadPath streams a local file into the backend. The source file is left in place.
	UploadPath(ctx context.Context, v *model.FileVersion, localPath string) error
	DownloadStream(ctx context.Context, v *model.FileVersion) (io.ReadCloser, error)
	PresignedGetURL(ctx context.Context, v *model.FileVersion, expiry time.Duration, meta PresignMetadata) (string, error)
	// RemoveObjects succeeds when the object is already absent.
	RemoveObjects(ctx context.Context, v *model.FileVersion) error
	CreateBucket(ctx context.Context, name, region string) error
	SetBucketPolicy(ctx context.Context, policy, bucket string) error
	ListObjects(ctx context.Context, q ListQuery) (ListObjectsResult, error)
	// Locate returns where v's bytes live.
	Locate(v *model.FileVersion) Locator
}

func normalizeMaxKeys(n int) int {
	if n <= 0 || n > defaultMaxKeys {
		return defaultMaxKeys
	}
	return n
}
