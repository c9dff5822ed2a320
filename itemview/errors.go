package itemview

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUniqueIndexMissing means the unique id index required by the
	// non-exclusive refresh path is absent. This is a recognized failure
	// mode recovered by rebuilding, not an unexpected error.
	ErrUniqueIndexMissing = errors.New("itemview: unique index required for concurrent refresh is missing")

	// ErrViewMissing means the projection relation itself does not exist.
	ErrViewMissing = errors.New("itemview: cached view does not exist")
)

// ShouldRebuild classifies a non-exclusive refresh failure. Structural
// problems (missing index, missing relation) and transient conflicts
// (serialization failure, deadlock) are recovered by falling back to the
// exclusive rebuild; anything else is surfaced to the caller.
func ShouldRebuild(err error) bool {
	if errors.Is(err, ErrUniqueIndexMissing) || errors.Is(err, ErrViewMissing) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55000", // object_not_in_prerequisite_state: no unique index, or view never populated
			"42P01", // undefined_table: view was dropped
			"40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}

	return false
}
