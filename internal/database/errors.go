package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
	ErrorClassConflict
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeNotNullViolation     = "23502"
	codeCheckViolation       = "23514"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	if errors.Is(err, ErrWriteConflict) {
		return ErrorClassConflict
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure:
			return ErrorClassSerialization
		case codeDeadlockDetected:
			return ErrorClassDeadlock
		case codeLockNotAvailable:
			return ErrorClassTransient
		case codeUniqueViolation, codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization ||
		class == ErrorClassConflict
}

// IsForeignKeyViolation reports whether err is a postgres foreign key
// violation and, if so, which constraint fired.
func IsForeignKeyViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}

func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeCheckViolation
}

var (
	ErrStockItemNotFound    = errors.New("stock item not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrWriteConflict        = errors.New("write conflict")
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	ErrDuplicateCategory    = errors.New("category name already exists")
	ErrInvalidInput         = errors.New("invalid input")
)

// InsufficientStockError carries the quantity that was actually available
// when the request was rejected.
type InsufficientStockError struct {
	ItemID    int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: requested %d, available %d",
		e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ReferentialIntegrityError names the relationship that blocked a delete.
type ReferentialIntegrityError struct {
	Entity       string
	EntityID     int64
	Relationship string
	Count        int
}

func (e *ReferentialIntegrityError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("cannot delete %s %d: referenced by %d row(s) in %s",
			e.Entity, e.EntityID, e.Count, e.Relationship)
	}
	return fmt.Sprintf("cannot delete %s %d: still referenced by %s",
		e.Entity, e.EntityID, e.Relationship)
}

func (e *ReferentialIntegrityError) Is(target error) bool {
	return target == ErrReferentialIntegrity
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidInput, and ErrInvalidQuantity as well when the
// quantity field is at fault.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidQuantity {
		return e.Field == "quantity"
	}
	return target == ErrInvalidInput
}
