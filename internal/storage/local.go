package storage

import (
	"CloudVault/internal/common"
	"CloudVault/model"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang-jwt/jwt/v4"
)

const (
	policyDir       = ".policies"
	tempFilePattern = ".upload-*"

	// Query parameters of a local presigned URL.
	ParamExpires   = "X-Expires"
	ParamSignature = "X-Signature"
)

var ErrMalformedPolicy = errors.New("malformed bucket policy")

// LocalBackend stores objects under root/<bucket>/<key>.
type LocalBackend struct {
	root      string
	group     string
	publicURL string
	secret    []byte
	now       func() time.Time
}

type LocalOption func(*LocalBackend)

// WithClock replaces time.Now for presign issuance and verification.
func WithClock(now func() time.Time) LocalOption {
	return func(b *LocalBackend) {
		b.now = now
	}
}

// NewLocalBackend creates the root directory if needed.
func NewLocalBackend(root, group, publicURL, secret string, opts ...LocalOption) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	b := &LocalBackend{
		root:      root,
		group:     group,
		publicURL: strings.TrimRight(publicURL, "/"),
		secret:    []byte(secret),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Locate implements Backend.
func (b *LocalBackend) Locate(v *model.FileVersion) Locator {
	return Locate(b.group, v)
}

func validBucket(bucket string) bool {
	return bucket != "" && !strings.HasPrefix(bucket, ".") && !strings.ContainsAny(bucket, `/\`)
}

func (b *LocalBackend) bucketPath(bucket string) (string, error) {
	if !validBucket(bucket) {
		return "", fmt.Errorf("%w: bucket %q", common.ErrInvalidName, bucket)
	}
	return filepath.Join(b.root, bucket), nil
}

// objectPath maps a locator to a file path and refuses keys escaping the bucket.
func (b *LocalBackend) objectPath(loc Locator) (string, error) {
	dir, err := b.bucketPath(loc.Bucket)
	if err != nil {
		return "", err
	}
	// Keys are used verbatim; a key that cleans to another key would alias it.
	if loc.Key == "" || strings.HasPrefix(loc.Key, "/") || path.Clean(loc.Key) != loc.Key {
		return "", fmt.Errorf("%w: key %q", common.ErrInvalidName, loc.Key)
	}
	p := filepath.Join(dir, filepath.FromSlash(loc.Key))
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: key %q", common.ErrInvalidName, loc.Key)
	}
	return p, nil
}

// UploadBuffer writes through a temp file and renames it into place, so a
// retry with the same bytes leaves the same object.
func (b *LocalBackend) UploadBuffer(ctx context.Context, v *model.FileVersion, data []byte) error {
	return b.write(ctx, b.Locate(v), bytes.NewReader(data))
}

// UploadPath copies a local file into the bucket and leaves the source alone.
func (b *LocalBackend) UploadPath(ctx context.Context, v *model.FileVersion, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer src.Close()
	return b.write(ctx, b.Locate(v), src)
}

func (b *LocalBackend) write(ctx context.Context, loc Locator, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := b.objectPath(loc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	return nil
}

// DownloadStream opens the object file.
func (b *LocalBackend) DownloadStream(_ context.Context, v *model.FileVersion) (io.ReadCloser, error) {
	f, _, err := b.Open(b.Locate(v))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Open returns the object file and its info.
func (b *LocalBackend) Open(loc Locator) (*os.File, os.FileInfo, error) {
	p, err := b.objectPath(loc)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: object %s", common.ErrNotFound, loc)
		}
		return nil, nil, errors.Join(common.ErrStorageUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Join(common.ErrStorageUnavailable, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: object %s", common.ErrNotFound, loc)
	}
	return f, info, nil
}

// RemoveObjects deletes the object file and prunes empty parent directories
// below the bucket.
func (b *LocalBackend) RemoveObjects(_ context.Context, v *model.FileVersion) error {
	loc := b.Locate(v)
	p, err := b.objectPath(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	bucketDir := filepath.Join(b.root, loc.Bucket)
	for dir := filepath.Dir(p); dir != bucketDir && strings.HasPrefix(dir, bucketDir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// CreateBucket creates the bucket directory. The region is meaningless on
// local disk and ignored.
func (b *LocalBackend) CreateBucket(_ context.Context, name, _ string) error {
	dir, err := b.bucketPath(name)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: bucket %s already exists", common.ErrConflict, name)
		}
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	return nil
}

// SetBucketPolicy stores the JSON policy next to the buckets. An empty policy
// removes the stored one, as S3 does.
func (b *LocalBackend) SetBucketPolicy(_ context.Context, policy, bucket string) error {
	dir, err := b.bucketPath(bucket)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: bucket %s", common.ErrNotFound, bucket)
	}
	policies := filepath.Join(b.root, policyDir)
	if policy == "" {
		if err := os.Remove(filepath.Join(policies, bucket+".json")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(common.ErrStorageUnavailable, err)
		}
		return nil
	}
	if !json.Valid([]byte(policy)) {
		return ErrMalformedPolicy
	}
	if err := os.MkdirAll(policies, 0o755); err != nil {
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	if err := os.WriteFile(filepath.Join(policies, bucket+".json"), []byte(policy), 0o644); err != nil {
		return errors.Join(common.ErrStorageUnavailable, err)
	}
	return nil
}

// BucketPolicy returns the stored policy of a bucket.
func (b *LocalBackend) BucketPolicy(bucket string) (string, error) {
	if !validBucket(bucket) {
		return "", common.ErrInvalidName
	}
	data, err := os.ReadFile(filepath.Join(b.root, policyDir, bucket+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: policy of %s", common.ErrNotFound, bucket)
		}
		return "", errors.Join(common.ErrStorageUnavailable, err)
	}
	return string(data), nil
}

// ListObjects lists keys in lexical order with S3-like prefix, delimiter and
// start-after semantics.
func (b *LocalBackend) ListObjects(_ context.Context, q ListQuery) (ListObjectsResult, error) {
	dir, err := b.bucketPath(q.Bucket)
	if err != nil {
		return ListObjectsResult{}, err
	}
	if _, err := os.Stat(dir); err != nil {
		return ListObjectsResult{}, fmt.Errorf("%w: bucket %s", common.ErrNotFound, q.Bucket)
	}

	var keys []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return ListObjectsResult{}, errors.Join(common.ErrStorageUnavailable, err)
	}
	sort.Strings(keys)

	maxKeys := normalizeMaxKeys(q.MaxKeys)
	result := ListObjectsResult{Objects: make([]ObjectInfo, 0)}
	seenPrefix := make(map[string]bool)
	for _, key := range keys {
		if !strings.HasPrefix(key, q.Prefix) {
			continue
		}
		entry := key
		isPrefix := false
		if !q.Recursive {
			if i := strings.Index(key[len(q.Prefix):], "/"); i >= 0 {
				entry = key[:len(q.Prefix)+i+1]
				isPrefix = true
			}
		}
		if entry <= q.StartAfter || seenPrefix[entry] {
			continue
		}
		if len(result.Objects) == maxKeys {
			result.IsTruncated = true
			break
		}
		if isPrefix {
			seenPrefix[entry] = true
			result.Objects = append(result.Objects, ObjectInfo{Key: entry})
			continue
		}
		result.Objects = append(result.Objects, b.describe(dir, key))
	}
	if result.IsTruncated {
		result.NextStartAfter = result.Objects[len(result.Objects)-1].Key
	}
	return result, nil
}

func (b *LocalBackend) describe(bucketDir, key string) ObjectInfo {
	p := filepath.Join(bucketDir, filepath.FromSlash(key))
	info := ObjectInfo{Key: key}
	if st, err := os.Stat(p); err == nil {
		info.Size = st.Size()
		info.LastModified = st.ModTime().UTC()
	}
	if mt, err := mimetype.DetectFile(p); err == nil {
		info.ContentType = mt.String()
	}
	return info
}

type presignClaims struct {
	ContentType   string `json:"ctype,omitempty"`
	ContentLength int64  `json:"clen,omitempty"`
	jwt.RegisteredClaims
}

// PresignedGetURL issues a URL served by the /objects route. The signature is
// an HS256 token bound to the locator and expiring after expiry.
func (b *LocalBackend) PresignedGetURL(_ context.Context, v *model.FileVersion, expiry time.Duration, meta PresignMetadata) (string, error) {
	loc := b.Locate(v)
	if _, err := b.objectPath(loc); err != nil {
		return "", err
	}
	now := b.now()
	claims := presignClaims{
		ContentType:   meta.ContentType,
		ContentLength: meta.ContentLength,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   loc.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("sign presigned url: %w", err)
	}

	segments := strings.Split(loc.Key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	query := url.Values{}
	query.Set(ParamExpires, strconv.FormatInt(int64(expiry/time.Second), 10))
	query.Set(ParamSignature, token)
	return fmt.Sprintf("%s/objects/%s/%s?%s", b.publicURL, url.PathEscape(loc.Bucket), strings.Join(segments, "/"), query.Encode()), nil
}

// VerifyPresigned checks a presigned token against the requested locator and
// the backend clock.
func (b *LocalBackend) VerifyPresigned(loc Locator, token string) (PresignMetadata, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims presignClaims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return b.secret, nil
	})
	if err != nil {
		return PresignMetadata{}, fmt.Errorf("%w: invalid signature", common.ErrPermissionDenied)
	}
	if claims.Subject != loc.String() {
		return PresignMetadata{}, fmt.Errorf("%w: signature does not match object", common.ErrPermissionDenied)
	}
	if !claims.VerifyExpiresAt(b.now(), true) {
		return PresignMetadata{}, fmt.Errorf("%w: presigned url expired", common.ErrPermissionDenied)
	}
	return PresignMetadata{ContentType: claims.ContentType, ContentLength: claims.ContentLength}, nil
}
