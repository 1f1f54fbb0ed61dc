// Package repository is the repository facade (C8): the sole boundary
// between the domain services and relational storage. It exposes bulk
// lookups, range queries, serializable transactions with pessimistic row
// locks, and an append-only audit insert — never ad-hoc queries scattered
// through the service layer. Grounded on the teacher's
// internal/repository/booking_repository.go query shapes, generalized from
// a single Booking table to the full appointment/catalog/staffing schema.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Facade is the concrete, GORM-backed repository and the only
// implementation of the storage layer — the interface seam spec.md asks for
// (§9 "ambient dynamic dispatch replaced by a repository interface") lives
// one level up, in the Availability/Reservation/Lifecycle/Agenda service
// constructors, which accept this struct through a small *Store interface
// defined alongside each service so tests can substitute a fake.
type Facade struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Facade {
	return &Facade{db: db}
}

// DB exposes the underlying *gorm.DB for callers (schedulers, migrations)
// that need raw access outside the facade's curated methods.
func (f *Facade) DB() *gorm.DB {
	return f.db
}

// WithinTransaction runs fn inside a serializable transaction, matching
// §4.5/§4.6's requirement that Reserve/Reschedule lock rows and revalidate
// under the same transaction that later commits the write.
func (f *Facade) WithinTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return f.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// conflictError wraps a storage error that should be classified as a
// conflict (unique constraint violation) by callers.
type conflictError struct {
	err error
}

func (e *conflictError) Error() string { return fmt.Sprintf("storage conflict: %v", e.err) }
func (e *conflictError) Unwrap() error { return e.err }

// IsConflict reports whether err is (or wraps) a storage-level conflict,
// i.e. the unique constraint on (worker_id, start_datetime) firing as the
// second line of defense against double-booking (§5).
func IsConflict(err error) bool {
	var c *conflictError
	return errors.As(err, &c)
}
