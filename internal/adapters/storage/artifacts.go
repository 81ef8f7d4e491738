package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"leadpipe/internal/leads/ports"
)

// BucketArtifacts stores recordings and screenshots in one bucket and
// reports them as s3:// URLs.
type BucketArtifacts struct {
	svc    StorageService
	bucket string
}

var _ ports.ArtifactStore = (*BucketArtifacts)(nil)

// NewBucketArtifacts wraps svc for bucket.
func NewBucketArtifacts(svc StorageService, bucket string) *BucketArtifacts {
	return &BucketArtifacts{svc: svc, bucket: bucket}
}

// Upload implements ports.ArtifactStore.
func (a *BucketArtifacts) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := a.svc.ValidateContentType(contentType); err != nil {
		return "", err
	}
	if err := a.svc.ValidateFileSize(int64(len(data))); err != nil {
		return "", err
	}
	key = strings.TrimLeft(key, "/")
	if err := a.svc.PutObject(ctx, a.bucket, key, contentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	return S3URL(a.bucket, key), nil
}

// S3URL formats the location of an object.
func S3URL(bucket, key string) string {
	return "s3://" + bucket + "/" + strings.TrimLeft(key, "/")
}

// ParseS3URL splits an s3:// URL into bucket and key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", raw)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q needs bucket and key", raw)
	}
	return bucket, key, nil
}

// LocalArtifacts writes artifacts below a directory when object storage is
// not configured.
type LocalArtifacts struct {
	dir         string
	maxFileSize int64
}

var _ ports.ArtifactStore = (*LocalArtifacts)(nil)

// NewLocalArtifacts creates dir if needed.
func NewLocalArtifacts(dir string, maxFileSize int64) (*LocalArtifacts, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalArtifacts{dir: abs, maxFileSize: maxFileSize}, nil
}

// Upload implements ports.ArtifactStore and returns a file:// URL.
func (l *LocalArtifacts) Upload(_ context.Context, key, contentType string, data []byte) (string, error) {
	if err := validateContentType(contentType); err != nil {
		return "", err
	}
	if err := validateFileSize(int64(len(data)), l.maxFileSize); err != nil {
		return "", err
	}
	target := filepath.Join(l.dir, filepath.FromSlash(filepath.Clean("/"+key)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create artifact folder: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", key, err)
	}
	return "file://" + filepath.ToSlash(target), nil
}
