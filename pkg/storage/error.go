package storage

import (
	"errors"
	"strconv"
)

var (
	// ErrTransient marks failures worth retrying: lost connections, pool
	// exhaustion, lock contention, serialization failures.
	ErrTransient = errors.New("transient storage error")

	// ErrConstraint marks a constraint violation on anything other than an
	// idempotency key. It indicates a programming or data-integrity bug and
	// is never retried.
	ErrConstraint = errors.New("constraint violation")
)

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Entity + " not found"
	}
	return e.Entity + " not found: " + e.Key
}

// NotFound builds a NotFoundError for an entity looked up by key.
func NotFound(entity string, key any) error {
	var k string
	switch v := key.(type) {
	case string:
		k = v
	case int64:
		k = strconv.FormatInt(v, 10)
	case int:
		k = strconv.Itoa(v)
	}
	return &NotFoundError{Entity: entity, Key: k}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransient reports whether err is, or wraps, ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// classifiedError attaches a taxonomy sentinel to a driver error while keeping
// the driver error reachable through errors.As.
type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// Classify wraps err with kind (ErrTransient or ErrConstraint).
func Classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &classifiedError{kind: kind, err: err}
}
