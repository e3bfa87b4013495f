package library

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation. Every lifecycle error surfaces
// synchronously to the caller with a message naming the offending entity;
// only the batch sweeps swallow errors (they log and report failure).
type Kind string

const (
	// KindValidation marks malformed input: bad date ordering, bad
	// email or employee ID format, future hire date.
	KindValidation Kind = "validation"
	// KindConstraint marks a uniqueness breach (ISBN, phone, employee
	// ID) or a business-rule breach (borrow limit, status change with
	// too many books out).
	KindConstraint Kind = "constraint"
	// KindUnavailable means no copies of the book remain.
	KindUnavailable Kind = "unavailable"
	// KindAlreadyReturned marks a redundant return attempt.
	KindAlreadyReturned Kind = "already_returned"
	// KindBlocked marks deletion of a record whose book is still out.
	KindBlocked Kind = "blocked"
	// KindNotFound means the referenced entity does not exist.
	KindNotFound Kind = "not_found"
)

// Error is a rejected-operation error with a classification the callers
// (CLI, HTTP layer) can branch on.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// ErrorKind extracts the Kind from err, or "" for plain errors.
func ErrorKind(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, k Kind) bool { return ErrorKind(err) == k }

func validationErr(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func constraintErr(format string, args ...any) *Error {
	return &Error{Kind: KindConstraint, Message: fmt.Sprintf(format, args...)}
}

func unavailableErr(format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

func alreadyReturnedErr() *Error {
	return &Error{Kind: KindAlreadyReturned, Message: "this book has already been returned"}
}

func blockedErr(format string, args ...any) *Error {
	return &Error{Kind: KindBlocked, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}
