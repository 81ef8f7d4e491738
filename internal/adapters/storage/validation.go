package storage

import (
	"fmt"
	"strings"
)

// AllowedContentTypes defines the MIME types the pipeline stores.
var AllowedContentTypes = map[string]bool{
	// Screenshots
	"image/png":  true,
	"image/jpeg": true,

	// Call recordings
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/ogg":   true,
	"audio/webm":  true,

	// Lead imports
	"text/csv":                 true,
	"text/plain":               true,
	"application/vnd.ms-excel": true,
	"application/octet-stream": true,
}

// NormalizeContentType strips parameters like charset and lower-cases.
func NormalizeContentType(contentType string) string {
	normalized := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(normalized))
}

// ValidateContentType checks if the content type is allowed.
func (s *MinIOService) ValidateContentType(contentType string) error {
	return validateContentType(contentType)
}

// ValidateFileSize checks if the file size is within limits.
func (s *MinIOService) ValidateFileSize(sizeBytes int64) error {
	return validateFileSize(sizeBytes, s.maxFileSize)
}

func validateContentType(contentType string) error {
	if !AllowedContentTypes[NormalizeContentType(contentType)] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

func validateFileSize(sizeBytes, maxFileSize int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("file size must be greater than 0")
	}
	if maxFileSize > 0 && sizeBytes > maxFileSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, maxFileSize)
	}
	return nil
}

// IsAudioContentType checks if the content type is a recording.
func IsAudioContentType(contentType string) bool {
	return strings.HasPrefix(NormalizeContentType(contentType), "audio/")
}

// IsImageContentType checks if the content type is an image.
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(NormalizeContentType(contentType), "image/")
}

// IsCSVContentType checks if the content type can carry a lead import.
func IsCSVContentType(contentType string) bool {
	switch NormalizeContentType(contentType) {
	case "text/csv", "text/plain", "application/vnd.ms-excel", "application/octet-stream":
		return true
	}
	return false
}
