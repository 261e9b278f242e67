package optimize

import (
	"CloudVault/config"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Encoder converts the image at srcPath into WebP at dstPath.
type Encoder interface {
	Encode(ctx context.Context, srcPath, dstPath string) error
}

// CWebpEncoder shells out to the cwebp binary.
type CWebpEncoder struct {
	Binary  string
	Quality int
}

// NewCWebpEncoder builds an encoder from the optimize settings.
func NewCWebpEncoder(cfg config.OptimizeConfig) *CWebpEncoder {
	binary := cfg.CWebpBinary
	if binary == "" {
		binary = "cwebp"
	}
	quality := cfg.Quality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &CWebpEncoder{Binary: binary, Quality: quality}
}

// Encode runs cwebp and returns its stderr on failure.
func (e *CWebpEncoder) Encode(ctx context.Context, srcPath, dstPath string) error {
	cmd := exec.CommandContext(ctx, e.Binary, "-quiet", "-q", strconv.Itoa(e.Quality), srcPath, "-o", dstPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("cwebp: %w", err)
		}
		return fmt.Errorf("cwebp: %w: %s", err, msg)
	}
	return nil
}
