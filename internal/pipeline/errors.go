package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Every worker error is tagged with exactly one of these so
// the audit log and metrics can tell failure classes apart.
var (
	// ErrAuthentication means the stage could not start.
	ErrAuthentication = errors.New("authentication failure")
	// ErrInitiation means the provider rejected the request.
	ErrInitiation = errors.New("initiation failure")
	// ErrTimeout means the deadline passed before a terminal external state.
	ErrTimeout = errors.New("timeout")
	// ErrClassificationDefault marks a heuristic fallback. It is not a failure.
	ErrClassificationDefault = errors.New("classification default")
	// ErrArtifact means a recording or screenshot could not be captured.
	ErrArtifact = errors.New("artifact failure")
	// ErrUnexpected is the catch-all.
	ErrUnexpected = errors.New("unexpected failure")
)

var markers = []error{
	ErrAuthentication,
	ErrInitiation,
	ErrTimeout,
	ErrClassificationDefault,
	ErrArtifact,
	ErrUnexpected,
}

// Wrap tags err with marker and a stage/operation prefix.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrUnexpected
	}
	detail := buildDetail(stage, operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind returns the marker text for err, or "unexpected failure" when
// err carries none.
func FailureKind(err error) string {
	for _, m := range markers {
		if errors.Is(err, m) {
			return m.Error()
		}
	}
	return ErrUnexpected.Error()
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{stage, operation, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "worker failure"
	}
	return strings.Join(parts, ": ")
}
