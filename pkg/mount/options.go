package mount

import (
	"fmt"

	"github.com/filemount/filemount/pkg/uploader"
)

// Options is the configuration a mount is declared with.
type Options struct {
	// Uploader mints a fresh uploader instance per file slot. Required.
	Uploader uploader.Factory

	// Column names the record field that persists identifiers.
	// Defaults to the attribute name.
	Column string

	// Multiple marks the mount as multi-valued (a set of files).
	Multiple bool

	// IgnoreIntegrityErrors swallows integrity failures at cache/store time:
	// the failing slot is left empty and the error is retained for
	// inspection instead of propagating.
	IgnoreIntegrityErrors bool

	// IgnoreProcessingErrors does the same for processing failures.
	IgnoreProcessingErrors bool

	// IgnoreDownloadErrors does the same for remote-download failures.
	IgnoreDownloadErrors bool

	// RemovePreviousOnUpdate enables deletion of superseded stored files
	// after an update changes the serialization column. See reconcile.go.
	RemovePreviousOnUpdate bool

	// Metrics receives operation observations. Nil disables instrumentation.
	Metrics Metrics
}

// validate checks the options for a given attribute and fills defaults.
func (o *Options) validate(attribute string) error {
	if attribute == "" {
		return fmt.Errorf("mount requires an attribute name")
	}
	if o.Uploader == nil {
		return fmt.Errorf("mount %q requires an uploader factory", attribute)
	}
	if o.Column == "" {
		o.Column = attribute
	}
	return nil
}
