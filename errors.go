package ospace

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Standard sentinel errors for the object runtime.
var (
	// ErrDuplicateType is returned when two structurally different descriptions
	// are supplied for the same Go type.
	ErrDuplicateType = errors.New("ospace: duplicate entity type")

	// ErrIdentityMismatch is returned when a wrapper, a proxy instance or a
	// relationship manager disagree about the entity they belong to.
	ErrIdentityMismatch = errors.New("ospace: entity identity mismatch")

	// ErrInvalidOperation is returned when an operation is not allowed on
	// the current state of an entity.
	ErrInvalidOperation = errors.New("ospace: invalid operation")

	// ErrGenerationFailed is returned when a proxy type could not be generated.
	ErrGenerationFailed = errors.New("ospace: proxy generation failed")

	// ErrConfiguration is returned for invalid metadata or component configuration.
	ErrConfiguration = errors.New("ospace: invalid configuration")

	// ErrNotFound is returned when a metadata item or a member does not exist.
	ErrNotFound = errors.New("ospace: not found")
)

// DuplicateTypeError reports that a Go type was described twice with
// different hashed descriptions.
type DuplicateTypeError struct {
	Type   reflect.Type
	Name   string
	Cached string // hashed description already registered
	Given  string // hashed description supplied by the caller
}

// Error returns the error string.
func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf(
		"ospace: type %v is mapped by entity type %q with two different descriptions (%s != %s); "+
			"each Go type may be described by only one entity type",
		e.Type, e.Name, short(e.Cached), short(e.Given),
	)
}

// Is reports whether the target matches ErrDuplicateType.
func (e *DuplicateTypeError) Is(target error) bool {
	return target == ErrDuplicateType
}

// NewDuplicateTypeError returns a new DuplicateTypeError.
func NewDuplicateTypeError(typ reflect.Type, name, cached, given string) *DuplicateTypeError {
	return &DuplicateTypeError{Type: typ, Name: name, Cached: cached, Given: given}
}

// IsDuplicateType returns true if the error is a DuplicateTypeError.
func IsDuplicateType(err error) bool {
	var e *DuplicateTypeError
	return errors.As(err, &e)
}

// IdentityError reports wrapper or relationship manager identity corruption.
type IdentityError struct {
	Kind    string // "proxy wrapper", "relationship manager owner", ...
	Type    reflect.Type
	Message string
}

// Error returns the error string.
func (e *IdentityError) Error() string {
	var b strings.Builder
	b.WriteString("ospace: ")
	b.WriteString(e.Kind)
	b.WriteString(" mismatch")
	if e.Type != nil {
		fmt.Fprintf(&b, " on %v", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches ErrIdentityMismatch.
func (e *IdentityError) Is(target error) bool {
	return target == ErrIdentityMismatch
}

// NewIdentityError returns a new IdentityError.
func NewIdentityError(kind string, typ reflect.Type, message string) *IdentityError {
	return &IdentityError{Kind: kind, Type: typ, Message: message}
}

// IsIdentityError returns true if the error is an IdentityError.
func IsIdentityError(err error) bool {
	var e *IdentityError
	return errors.As(err, &e)
}

// CollectionReplaceError is returned by a proxy collection setter when the
// supplied collection is not the one managed by the related end.
type CollectionReplaceError struct {
	Property string
	Type     string
}

// Error returns the error string.
func (e *CollectionReplaceError) Error() string {
	return fmt.Sprintf(
		"ospace: the collection navigation property %q on %s cannot be set because the collection is already "+
			"managed by a related end; add or remove items instead",
		e.Property, e.Type,
	)
}

// Is reports whether the target matches ErrInvalidOperation.
func (e *CollectionReplaceError) Is(target error) bool {
	return target == ErrInvalidOperation
}

// NewCollectionReplaceError returns a new CollectionReplaceError.
func NewCollectionReplaceError(property, typ string) *CollectionReplaceError {
	return &CollectionReplaceError{Property: property, Type: typ}
}

// GenerationError represents a failure while synthesizing a proxy type.
type GenerationError struct {
	Type    string
	Phase   string // "plan", "define", "finalize", "hook", ...
	Message string
	Cause   error
}

// Error returns the error string.
func (e *GenerationError) Error() string {
	var b strings.Builder
	b.WriteString("ospace: generation error")
	if e.Type != "" {
		b.WriteString(" for ")
		b.WriteString(e.Type)
	}
	if e.Phase != "" {
		b.WriteString(" in phase ")
		b.WriteString(e.Phase)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches ErrGenerationFailed.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// NewGenerationError returns a new GenerationError.
func NewGenerationError(typ, phase, message string, cause error) *GenerationError {
	return &GenerationError{Type: typ, Phase: phase, Message: message, Cause: cause}
}

// IsGenerationError returns true if the error is a GenerationError.
func IsGenerationError(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}

// ConfigurationError represents invalid metadata or component configuration.
type ConfigurationError struct {
	Subject string
	Message string
	Cause   error
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("ospace: configuration error for %s: %s", e.Subject, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError returns a new ConfigurationError.
func NewConfigurationError(subject, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Message: message, Cause: cause}
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
