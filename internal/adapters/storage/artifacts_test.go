package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeObjects struct {
	puts    map[string][]byte
	putErr  error
	maxSize int64
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, key, _ string, reader io.Reader, _ int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[bucket+"/"+key] = data
	return nil
}

func (f *fakeObjects) UploadFile(ctx context.Context, bucket, folder, fileName, contentType string, reader io.Reader, size int64) (string, error) {
	key := UniqueKey(folder, fileName)
	return key, f.PutObject(ctx, bucket, key, contentType, reader, size)
}

func (f *fakeObjects) DownloadFile(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := f.puts[bucket+"/"+key]
	if !ok {
		return nil, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, bucket, key string) error {
	delete(f.puts, bucket+"/"+key)
	return nil
}

func (f *fakeObjects) EnsureBucketExists(context.Context, string) error { return nil }

func (f *fakeObjects) ValidateContentType(contentType string) error {
	return validateContentType(contentType)
}

func (f *fakeObjects) ValidateFileSize(sizeBytes int64) error {
	return validateFileSize(sizeBytes, f.maxSize)
}

func TestBucketArtifactsUpload(t *testing.T) {
	objects := &fakeObjects{maxSize: 1024}
	store := NewBucketArtifacts(objects, "lead-artifacts")

	url, err := store.Upload(context.Background(), "/recordings/12015550123_pub_20260101120000.mp3", "audio/mpeg", []byte("ID3"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "s3://lead-artifacts/recordings/12015550123_pub_20260101120000.mp3" {
		t.Fatalf("url = %q", url)
	}
	if string(objects.puts["lead-artifacts/recordings/12015550123_pub_20260101120000.mp3"]) != "ID3" {
		t.Fatalf("object not stored: %v", objects.puts)
	}
}

func TestBucketArtifactsRejectsInvalidUploads(t *testing.T) {
	objects := &fakeObjects{maxSize: 2}
	store := NewBucketArtifacts(objects, "b")

	if _, err := store.Upload(context.Background(), "x.exe", "application/x-msdownload", []byte("a")); err == nil {
		t.Fatalf("expected content type rejection")
	}
	if _, err := store.Upload(context.Background(), "x.png", "image/png", []byte("abc")); err == nil {
		t.Fatalf("expected size rejection")
	}
	if _, err := store.Upload(context.Background(), "x.png", "image/png", nil); err == nil {
		t.Fatalf("expected empty rejection")
	}

	objects.putErr = errors.New("bucket offline")
	if _, err := store.Upload(context.Background(), "x.png", "image/png", []byte("a")); err == nil {
		t.Fatalf("expected put error")
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL(S3URL("imports", "csv/leads_1.csv"))
	if err != nil || bucket != "imports" || key != "csv/leads_1.csv" {
		t.Fatalf("ParseS3URL = %q, %q, %v", bucket, key, err)
	}
	for _, bad := range []string{"https://x/y", "s3://bucket", "s3:///key"} {
		if _, _, err := ParseS3URL(bad); err == nil {
			t.Errorf("ParseS3URL(%q) succeeded", bad)
		}
	}
}

func TestLocalArtifactsStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalArtifacts(dir, 0)
	if err != nil {
		t.Fatalf("NewLocalArtifacts: %v", err)
	}

	url, err := store.Upload(context.Background(), "../../screenshots/lead_1.png", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := filepath.Join(dir, "screenshots", "lead_1.png")
	if !strings.HasSuffix(url, filepath.ToSlash(want)) {
		t.Fatalf("url = %q, want suffix %q", url, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "png" {
		t.Fatalf("stored file = %q, %v", data, err)
	}
}

func TestUniqueKeyKeepsExtension(t *testing.T) {
	key := UniqueKey("imports", "../leads.csv")
	if !strings.HasPrefix(key, "imports/leads_") || !strings.HasSuffix(key, ".csv") {
		t.Fatalf("UniqueKey = %q", key)
	}
}

func TestContentTypeHelpers(t *testing.T) {
	if !IsAudioContentType("audio/mpeg; charset=binary") || IsAudioContentType("image/png") {
		t.Fatalf("IsAudioContentType mismatch")
	}
	if !IsImageContentType("IMAGE/PNG") {
		t.Fatalf("IsImageContentType mismatch")
	}
	if !IsCSVContentType("text/csv; charset=utf-8") || IsCSVContentType("image/png") {
		t.Fatalf("IsCSVContentType mismatch")
	}
}
