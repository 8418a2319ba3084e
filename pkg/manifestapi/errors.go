package manifestapi

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is. The struct errors below unwrap to them.
var (
	ErrValidation     = errors.New("manifestapi: validation failed")
	ErrTypeMismatch   = errors.New("manifestapi: type mismatch")
	ErrNotFound       = errors.New("manifestapi: not found")
	ErrUnresolvedType = errors.New("manifestapi: unresolved type")
	// ErrWrongMode is returned when a keyed operation is used on a list registry or vice versa.
	ErrWrongMode = errors.New("manifestapi: operation not supported by registry mode")
)

// ValidationError reports a manifest that is not usable, such as a missing name.
type ValidationError struct {
	Manifest string
	Field    string
	Message  string
}

func (e ValidationError) Error() string {
	switch {
	case e.Manifest != "" && e.Field != "":
		return fmt.Sprintf("manifest %s: %s: %s", e.Manifest, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("manifest: %s: %s", e.Field, e.Message)
	default:
		return fmt.Sprintf("manifest %s: %s", e.Manifest, e.Message)
	}
}

func (e ValidationError) Unwrap() error { return ErrValidation }

// TypeMismatch reports an attribute value that cannot be coerced to its declared type.
type TypeMismatch struct {
	Field string
	Want  string
	Got   string
	Err   error
}

func (e TypeMismatch) Error() string {
	msg := fmt.Sprintf("attribute %s: cannot use %s as %s", e.Field, e.Got, e.Want)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e TypeMismatch) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTypeMismatch}
	}
	return []error{ErrTypeMismatch, e.Err}
}

// NotFound reports a lookup of a key that was never registered.
type NotFound struct {
	Kind string
	Key  string
}

func (e NotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e NotFound) Unwrap() error { return ErrNotFound }

// UnresolvedType reports a type name the TypeLookup does not know.
type UnresolvedType struct {
	Name string
}

func (e UnresolvedType) Error() string {
	return fmt.Sprintf("type %q could not be resolved", e.Name)
}

func (e UnresolvedType) Unwrap() error { return ErrUnresolvedType }
