package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a fault so callers can map it onto a transport status
// without inspecting error text.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindPersistence Kind = "persistence"
)

// Fault is the error type crossing the pipeline boundary. Stage and
// side-effect failures are absorbed before reaching callers, so every Fault a
// caller sees is validation, not-found, or persistence.
type Fault struct {
	Kind   Kind
	Detail string
	Fields []string // missing field names for validation faults, when known
	cause  error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Fault) Unwrap() error { return f.cause }

// Validation reports a bad input shape or value.
func Validation(detail string) *Fault {
	return &Fault{Kind: KindValidation, Detail: detail}
}

// MissingFields reports a validation fault carrying the missing field names.
func MissingFields(detail string, fields []string) *Fault {
	return &Fault{Kind: KindValidation, Detail: detail, Fields: fields}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(detail string) *Fault {
	return &Fault{Kind: KindNotFound, Detail: detail}
}

// Persistence wraps a storage write failure.
func Persistence(detail string, cause error) *Fault {
	return &Fault{Kind: KindPersistence, Detail: detail, cause: cause}
}

// KindOf extracts the fault kind, or "" when err is not a Fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsKind reports whether err is a Fault of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
