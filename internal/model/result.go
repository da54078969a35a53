package model

import "errors"

// ErrInvalidEvent marks a field combination that can never form an event.
var ErrInvalidEvent = errors.New("invalid event")

// ValidationResult reports an expected domain failure as a value. Kind is
// the sentinel error the failure belongs to; Message is the human-readable
// reason.
type ValidationResult struct {
	Valid   bool
	Message string
	Kind    error
}

// Valid returns a successful result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true, Message: "Valid"}
}

// Invalid returns a failed result of the given kind.
func Invalid(kind error, message string) ValidationResult {
	return ValidationResult{Valid: false, Message: message, Kind: kind}
}

// Err converts a failed result into an error. It returns nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return NewValidationError(r.Kind, r.Message)
}

// ErrAs is like Err but also marks the error with an outer kind, so that
// errors.Is matches both the outer kind and the original one.
func (r ValidationResult) ErrAs(kind error) error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Message: r.Message, Kinds: []error{kind, r.Kind}}
}

// ValidationError is the error form of a failed ValidationResult.
type ValidationError struct {
	Message string
	Kinds   []error
}

func NewValidationError(kind error, message string) *ValidationError {
	return &ValidationError{Message: message, Kinds: []error{kind}}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap exposes the kinds to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Kinds))
	for _, k := range e.Kinds {
		if k != nil {
			out = append(out, k)
		}
	}
	return out
}
