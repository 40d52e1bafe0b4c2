package db

import (
	"database/sql"
	"errors"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/mattn/go-sqlite3"
)

// IsUniqueViolation reports whether err is a unique or primary key
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsBusy reports whether sqlite gave up waiting for a lock.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// IsNotFound reports whether err is sql.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// MapError converts a raw storage error into the domain taxonomy. Domain
// errors pass through untouched. Lost races on a unique index and lock
// timeouts surface as retryable concurrency conflicts; everything else is
// a persistence error.
func MapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsDomainError(err) {
		return err
	}
	if IsUniqueViolation(err) || IsBusy(err) {
		return apperrors.NewDatabaseError(apperrors.ErrCodeConcurrencyConflict, "concurrent modification detected", true, err).
			WithMetadata("db_operation", operation)
	}
	return apperrors.NewPersistenceError(operation, err)
}
