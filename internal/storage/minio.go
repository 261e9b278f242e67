package storage

import (
	"CloudVault/config"
	"CloudVault/model"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioAPI is the subset of *minio.Client used by MinioBackend.
type minioAPI interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucket, policy string) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// MinioBackend implements Backend on any S3-compatible service.
type MinioBackend struct {
	client minioAPI
	group  string
}

// NewMinioBackend builds a backend from an existing client.
func NewMinioBackend(client *minio.Client, group string) *MinioBackend {
	return &MinioBackend{client: client, group: group}
}

// NewMinioClient dials nothing; it only prepares the client. Setting the
// region keeps presigning offline.
func NewMinioClient(cfg config.StorageConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// Locate implements Backend.
func (b *MinioBackend) Locate(v *model.FileVersion) Locator {
	return Locate(b.group, v)
}

// UploadBuffer uploads raw bytes. Re-uploading the same bytes to the same
// locator overwrites the object with identical content.
func (b *MinioBackend) UploadBuffer(ctx context.Context, v *model.FileVersion, data []byte) error {
	loc := b.Locate(v)
	_, err := b.client.PutObject(ctx, loc.Bucket, loc.Key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: v.MimeType,
	})
	return classify(err)
}

// UploadPath streams a local file into the bucket.
func (b *MinioBackend) UploadPath(ctx context.Context, v *model.FileVersion, localPath string) error {
	loc := b.Locate(v)
	_, err := b.client.FPutObject(ctx, loc.Bucket, loc.Key, localPath, minio.PutObjectOptions{
		ContentType: v.MimeType,
	})
	return classify(err)
}

// DownloadStream opens the object. GetObject is lazy, so the object is
// stat'ed first to surface a missing key before the caller starts reading.
func (b *MinioBackend) DownloadStream(ctx context.Context, v *model.FileVersion) (io.ReadCloser, error) {
	loc := b.Locate(v)
	if _, err := b.client.StatObject(ctx, loc.Bucket, loc.Key, minio.StatObjectOptions{}); err != nil {
		return nil, classify(err)
	}
	obj, err := b.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	return obj, nil
}

// PresignedGetURL signs a GET URL. ContentLength cannot be enforced on a GET
// signature and is only advisory here.
func (b *MinioBackend) PresignedGetURL(ctx context.Context, v *model.FileVersion, expiry time.Duration, meta PresignMetadata) (string, error) {
	loc := b.Locate(v)
	params := url.Values{}
	if meta.ContentType != "" {
		params.Set("response-content-type", meta.ContentType)
	}
	u, err := b.client.PresignedGetObject(ctx, loc.Bucket, loc.Key, expiry, params)
	if err != nil {
		return "", classify(err)
	}
	return u.String(), nil
}

// RemoveObjects deletes the object; a missing object is not an error.
func (b *MinioBackend) RemoveObjects(ctx context.Context, v *model.FileVersion) error {
	loc := b.Locate(v)
	err := classify(b.client.RemoveObject(ctx, loc.Bucket, loc.Key, minio.RemoveObjectOptions{}))
	if err != nil && isMissingKey(err) {
		return nil
	}
	return err
}

func isMissingKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
	}
	return false
}

// CreateBucket creates a bucket in the given region.
func (b *MinioBackend) CreateBucket(ctx context.Context, name, region string) error {
	return classify(b.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: region}))
}

// SetBucketPolicy applies a JSON bucket policy.
func (b *MinioBackend) SetBucketPolicy(ctx context.Context, policy, bucket string) error {
	return classify(b.client.SetBucketPolicy(ctx, bucket, policy))
}

// ListObjects reads one page from the listing channel and stops the listing
// once the page is full.
func (b *MinioBackend) ListObjects(ctx context.Context, q ListQuery) (ListObjectsResult, error) {
	maxKeys := normalizeMaxKeys(q.MaxKeys)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := b.client.ListObjects(ctx, q.Bucket, minio.ListObjectsOptions{
		Prefix:     q.Prefix,
		Recursive:  q.Recursive,
		StartAfter: q.StartAfter,
		MaxKeys:    maxKeys,
	})
	result := ListObjectsResult{Objects: make([]ObjectInfo, 0, maxKeys)}
	for object := range objects {
		if object.Err != nil {
			return ListObjectsResult{}, classify(object.Err)
		}
		if len(result.Objects) == maxKeys {
			result.IsTruncated = true
			break
		}
		result.Objects = append(result.Objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
			LastModified: object.LastModified,
		})
	}
	if result.IsTruncated {
		result.NextStartAfter = result.Objects[len(result.Objects)-1].Key
	}
	return result, nil
}
