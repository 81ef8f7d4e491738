package pipeline

import (
	"path"
	"strings"
	"time"

	"leadpipe/platform/phone"

	"github.com/google/uuid"
)

const artifactTimeLayout = "20060102150405"

// RecordingKey names an archived call recording:
// {folder}/{phone digits}_{publisher}_{timestamp}{ext}.
func RecordingKey(folder, phoneNumber, publisherID string, at time.Time, ext string) string {
	if ext == "" {
		ext = ".mp3"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := phone.Digits(phoneNumber) + "_" + publisherID + "_" + at.UTC().Format(artifactTimeLayout) + ext
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// ScreenshotKey names the post-submit screenshot of an entry attempt.
func ScreenshotKey(leadID uuid.UUID, at time.Time) string {
	return "screenshots/lead_" + leadID.String() + "_" + at.UTC().Format(artifactTimeLayout) + ".png"
}
