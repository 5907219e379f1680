package uploader

import (
	"errors"
	"fmt"
)

// The three error kinds an upload operation can surface. Each wraps its
// cause so callers can both classify the failure (errors.As) and inspect
// the underlying error (errors.Is / Unwrap).
//
// Classification matters to pkg/mount: each kind has an independent
// "ignore" option that converts propagation into retained-for-inspection.

// IntegrityError indicates the content was rejected by validation
// (wrong type, too large, corrupt, ...).
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("content integrity check failed: %v", e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// ProcessingError indicates a post-processing step failed after the content
// itself was accepted.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("content processing failed: %v", e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// DownloadError indicates a remote fetch failed.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download from %q failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IsIntegrity reports whether err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

// IsProcessing reports whether err is (or wraps) a ProcessingError.
func IsProcessing(err error) bool {
	var target *ProcessingError
	return errors.As(err, &target)
}

// IsDownload reports whether err is (or wraps) a DownloadError.
func IsDownload(err error) bool {
	var target *DownloadError
	return errors.As(err, &target)
}
