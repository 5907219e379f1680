// Package record defines the persistent-record contract consumed by
// pkg/mount, plus two implementations: an in-memory backend for tests and a
// gorm-backed store (SQLite or PostgreSQL) usable as a real persistence
// layer.
//
// The mount layer is deliberately ignorant of how a record is persisted. It
// needs exactly four things from a record: read a serialized identifier
// column, write one back, know whether the record is frozen (immutable), and
// re-read the record from its backing store so update-time reconciliation
// can see the authoritative previous state rather than in-memory mutations.
package record

import "context"

// Record is the persistent entity owning zero or more mounted attributes.
//
// Identifier columns are modeled as []string regardless of whether the mount
// is single- or multi-valued: a single mount uses zero or one element, and
// the implementation is free to serialize that as a plain string column.
// nil means the column is empty.
type Record interface {
	// Key identifies this record instance for mounter bookkeeping.
	// Two loads of the same persisted row must return the same key.
	Key() string

	// ReadColumn returns the serialized identifiers for a column and
	// whether the column exists on this record.
	ReadColumn(column string) ([]string, bool)

	// WriteColumn replaces the serialized identifiers for a column.
	// A nil or empty slice clears it.
	WriteColumn(column string, identifiers []string)

	// Frozen reports whether this record instance is immutable. Mounters
	// for frozen records are never memoized and never write columns.
	Frozen() bool

	// Reload re-reads the record from its backing store, bypassing any
	// in-memory mutations. Returns nil (and no error) if the record has
	// never been persisted.
	Reload(ctx context.Context) (Record, error)
}
