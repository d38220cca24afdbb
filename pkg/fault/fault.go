// Package fault defines the typed failures raised while validating records.
//
// Every validation failure is a *Error carrying a Kind, the dotted/bracketed
// path of the offending node and a human message. Kinds are comparable with
// errors.Is against the package sentinels:
//
//	if errors.Is(err, fault.ErrRequired) { ... }
//
// A *ConfigurationError is different: it reports a registry built with a type
// tag nothing can handle. That is a build fault, never a property of the input,
// and callers must not treat it as a normal validation result.
package fault

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a validation failure.
type Kind string

// Validation failure kinds.
const (
	KindFormat           Kind = "format"
	KindRequired         Kind = "required"
	KindInvalidField     Kind = "invalid-field"
	KindEnum             Kind = "enum"
	KindArrayCardinality Kind = "array-cardinality"
	KindReference        Kind = "reference"
	KindConstraint       Kind = "constraint"
)

// Sentinels for errors.Is. A *Error unwraps to the sentinel of its Kind.
var (
	ErrFormat           = errors.New("format error")
	ErrRequired         = errors.New("required field missing")
	ErrInvalidField     = errors.New("invalid field")
	ErrEnum             = errors.New("value not in enumeration")
	ErrArrayCardinality = errors.New("array cardinality mismatch")
	ErrReference        = errors.New("invalid reference")
	ErrConstraint       = errors.New("constraint violated")
)

var sentinels = map[Kind]error{
	KindFormat:           ErrFormat,
	KindRequired:         ErrRequired,
	KindInvalidField:     ErrInvalidField,
	KindEnum:             ErrEnum,
	KindArrayCardinality: ErrArrayCardinality,
	KindReference:        ErrReference,
	KindConstraint:       ErrConstraint,
}

// Error is a single validation failure.
type Error struct {
	Kind    Kind
	Path    string
	Message string

	// Value is the offending scalar, when there is one.
	Value string
	// Fields lists every unexpected key for KindInvalidField.
	Fields []string
	// Allowed lists the permitted values for KindEnum and KindReference.
	Allowed []string
	// Key is the invariant identifier for KindConstraint (e.g. "per-1").
	Key string
	// Target is the kind token of a well-formed reference whose kind is not allowed.
	Target string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel matching e.Kind.
func (e *Error) Unwrap() error {
	return sentinels[e.Kind]
}

// Format reports a primitive value that fails its type's grammar or range.
func Format(path, value, typeTag, detail string) *Error {
	msg := fmt.Sprintf("Invalid %s value '%s' at %s", typeTag, truncate(value), path)
	if detail != "" {
		msg += ": " + detail
	}
	return &Error{Kind: KindFormat, Path: path, Value: value, Message: msg}
}

// Structure reports a record shape problem that is neither a missing nor an
// unknown field (wrong JSON type for a composite, unknown resourceType, depth).
func Structure(path, detail string) *Error {
	return &Error{Kind: KindFormat, Path: path, Message: fmt.Sprintf("%s at %s", detail, path)}
}

// Required reports a mandatory field that is absent or empty.
func Required(path string) *Error {
	return &Error{Kind: KindRequired, Path: path, Message: fmt.Sprintf("Missing required field: %s", path)}
}

// InvalidFields reports every key present in a record but absent from its schema.
func InvalidFields(path string, fields []string) *Error {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return &Error{
		Kind:    KindInvalidField,
		Path:    path,
		Fields:  sorted,
		Message: fmt.Sprintf("Invalid field(s) at %s: %s", path, strings.Join(sorted, ", ")),
	}
}

// Enum reports a value outside a closed code set.
func Enum(path, value string, allowed []string) *Error {
	return &Error{
		Kind:    KindEnum,
		Path:    path,
		Value:   value,
		Allowed: allowed,
		Message: fmt.Sprintf("Invalid value '%s' at %s. Allowed values: %s", value, path, strings.Join(allowed, ", ")),
	}
}

// ArrayCardinality reports a scalar where an array is declared.
func ArrayCardinality(path string) *Error {
	return &Error{Kind: KindArrayCardinality, Path: path, Message: fmt.Sprintf("Field %s must be an array", path)}
}

// ScalarCardinality reports an array where a single value is declared.
func ScalarCardinality(path string) *Error {
	return &Error{Kind: KindArrayCardinality, Path: path, Message: fmt.Sprintf("Field %s must not be an array", path)}
}

// MalformedReference reports a reference string with no recognizable shape.
func MalformedReference(path, ref string) *Error {
	return &Error{
		Kind:    KindReference,
		Path:    path,
		Value:   ref,
		Message: fmt.Sprintf("Invalid reference format '%s' at %s", truncate(ref), path),
	}
}

// DisallowedReference reports a local reference whose kind is not an allowed target.
func DisallowedReference(path, kind string, allowed []string) *Error {
	return &Error{
		Kind:    KindReference,
		Path:    path,
		Value:   kind,
		Target:  kind,
		Allowed: allowed,
		Message: fmt.Sprintf("Invalid reference type '%s' at %s. Allowed types: %s", kind, path, strings.Join(allowed, ", ")),
	}
}

// Constraint reports a violated cross-field invariant.
func Constraint(path, key, human string) *Error {
	return &Error{Kind: KindConstraint, Path: path, Key: key, Message: fmt.Sprintf("[%s] %s", path, human)}
}

// ConfigurationError reports a type tag with no registered schema or validator.
type ConfigurationError struct {
	// Tag is the unresolved type tag.
	Tag string
	// Path is where the tag was encountered, if known.
	Path string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("no schema or validator registered for type '%s'", e.Tag)
	}
	return fmt.Sprintf("no schema or validator registered for type '%s' (at %s)", e.Tag, e.Path)
}

// IsConfiguration reports whether err is, or wraps, a *ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func truncate(value string) string {
	if len(value) > 50 {
		return value[:47] + "..."
	}
	return value
}
