package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")

	// ErrInvalidReference is returned when a write points at a row that does
	// not exist.
	ErrInvalidReference = errors.New("invalid reference")
)

// ReferenceError names the field whose referenced row is missing.
type ReferenceError struct {
	Field string
	Value string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Field, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidReference.
func (e *ReferenceError) Unwrap() error {
	return ErrInvalidReference
}

// classify maps driver constraint errors onto the store sentinels. Errors
// that are not constraint violations are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%w: %w", ErrInvalidReference, err)
		}

		return err
	}

	msg := err.Error()

	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	return err
}
