package config

import (
	"runtime"
	"strings"
	"time"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	Backend       string        // local, s3
	BucketGroup   string        // objects live in <group>.public and <group>.private
	PresignExpiry time.Duration // used when a caller passes no expiry

	LocalRoot      string
	LocalPublicURL string // base of presigned local URLs, served by /objects
	LocalSecret    string // signs local presigned URLs

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
}

// OptimizeConfig configures the WebP optimization pipeline.
type OptimizeConfig struct {
	CWebpBinary    string
	Quality        int
	ScratchDir     string // parent of per-call scratch dirs; empty means os.TempDir()
	MaxConcurrency int
	Timeout        time.Duration
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", BackendLocal)),
		BucketGroup:   getEnv("STORAGE_BUCKET_GROUP", "assets"),
		PresignExpiry: getEnvDuration("STORAGE_PRESIGN_EXPIRY", time.Hour),

		LocalRoot:      getEnv("STORAGE_LOCAL_ROOT", "./uploads"),
		LocalPublicURL: getEnv("STORAGE_LOCAL_PUBLIC_URL", "http://localhost:8000"),
		LocalSecret:    getEnv("STORAGE_LOCAL_SECRET", getEnv("JWT_SECRET", "l=ax+b")),

		S3Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey: getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),
	}
}

func loadOptimizeConfig() OptimizeConfig {
	return OptimizeConfig{
		CWebpBinary:    getEnv("CWEBP_BIN", "cwebp"),
		Quality:        getEnvInt("WEBP_QUALITY", 80),
		ScratchDir:     getEnv("OPTIMIZE_SCRATCH_DIR", ""),
		MaxConcurrency: getEnvInt("OPTIMIZE_MAX_CONCURRENCY", runtime.NumCPU()),
		Timeout:        getEnvDuration("OPTIMIZE_TIMEOUT", time.Minute),
	}
}
