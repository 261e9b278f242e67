package optimize

import (
	"CloudVault/config"
	"CloudVault/internal/common"
	"CloudVault/internal/dto"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

const (
	WebPExtension = "webp"
	WebPMimeType  = "image/webp"
)

// Pipeline re-encodes raster images to WebP. It never touches metadata or
// object storage.
type Pipeline struct {
	encoder    Encoder
	scratchDir string
	timeout    time.Duration
	sem        *semaphore.Weighted
}

// NewPipeline builds a pipeline. A nil encoder means cwebp.
func NewPipeline(cfg config.OptimizeConfig, encoder Encoder) *Pipeline {
	if encoder == nil {
		encoder = NewCWebpEncoder(cfg)
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	return &Pipeline{
		encoder:    encoder,
		scratchDir: cfg.ScratchDir,
		timeout:    cfg.Timeout,
		sem:        semaphore.NewWeighted(int64(limit)),
	}
}

func encodingFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", common.ErrEncodingFailed, fmt.Sprintf(format, args...))
}

// encode runs the encoder under the concurrency bound and the per-call timeout.
func (p *Pipeline) encode(ctx context.Context, src, dst string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.encoder.Encode(ctx, src, dst); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return errors.Join(common.ErrEncodingFailed, err)
	}
	return nil
}

// verifyWebP checks the artifact is a decodable WebP image.
func verifyWebP(data []byte) error {
	if mt := mimetype.Detect(data); !mt.Is(WebPMimeType) {
		return encodingFailed("encoder produced %s", mt.String())
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return encodingFailed("decode webp: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return encodingFailed("webp has no pixels")
	}
	return nil
}

// OptimizeMultipart encodes the spooled file to a sibling .webp file and
// returns the payload describing it. The source file is left in place.
func (p *Pipeline) OptimizeMultipart(ctx context.Context, in dto.MultipartPayload) (dto.MultipartPayload, error) {
	src := in.File.Path
	if src == "" {
		return in, encodingFailed("multipart payload has no file path")
	}
	dst := withExtension(src, WebPExtension)
	if dst == src {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".optimized." + WebPExtension
	}

	if err := p.encode(ctx, src, dst); err != nil {
		os.Remove(dst)
		return in, err
	}
	data, err := os.ReadFile(dst)
	if err == nil {
		err = verifyWebP(data)
	}
	if err != nil {
		os.Remove(dst)
		if !errors.Is(err, common.ErrEncodingFailed) {
			err = errors.Join(common.ErrEncodingFailed, err)
		}
		return in, err
	}

	out := in
	out.Extension = WebPExtension
	out.MimeType = WebPMimeType
	out.Size = int64(len(data))
	out.OriginalName = withExtension(in.OriginalName, WebPExtension)
	out.Name = withExtension(in.Name, WebPExtension)
	out.File = dto.MultipartFile{
		FieldName:    in.File.FieldName,
		OriginalName: withExtension(in.File.OriginalName, WebPExtension),
		Encoding:     in.File.Encoding,
		MimeType:     WebPMimeType,
		Destination:  in.File.Destination,
		FileName:     withExtension(in.File.FileName, WebPExtension),
		Path:         dst,
		Size:         int64(len(data)),
	}
	return out, nil
}

// OptimizeBase64 encodes base64 content to WebP. Each call works in its own
// scratch directory, removed on every return path.
func (p *Pipeline) OptimizeBase64(ctx context.Context, in dto.Base64Payload) (dto.Base64Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(in.Base64)
	if err != nil {
		return in, encodingFailed("decode base64: %v", err)
	}
	if len(raw) == 0 {
		return in, encodingFailed("empty content")
	}

	dir, err := os.MkdirTemp(p.scratchDir, "webp-*")
	if err != nil {
		return in, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "source")
	dst := filepath.Join(dir, "converted."+WebPExtension)
	if err := os.WriteFile(src, raw, 0o600); err != nil {
		return in, fmt.Errorf("write scratch input: %w", err)
	}
	if err := p.encode(ctx, src, dst); err != nil {
		return in, err
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		return in, errors.Join(common.ErrEncodingFailed, err)
	}
	if err := verifyWebP(data); err != nil {
		return in, err
	}

	out := in
	out.Base64 = base64.StdEncoding.EncodeToString(data)
	out.Extension = WebPExtension
	out.MimeType = WebPMimeType
	out.Size = int64(len(data))
	out.OriginalName = withExtension(in.OriginalName, WebPExtension)
	out.Name = withExtension(in.Name, WebPExtension)
	return out, nil
}

// withExtension swaps the extension of name. Empty names stay empty.
func withExtension(name, ext string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + ext
}
