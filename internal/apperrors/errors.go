// Package apperrors defines the error kinds surfaced by the analyzer core.
// Every kind matches a sentinel via errors.Is so transports can map them
// without inspecting messages.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrMalformedCSV      = errors.New("malformed csv")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrStorage           = errors.New("storage failure")
)

// ValidationError reports a bad or missing field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation creates a ValidationError.
func Validation(field, value, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// MalformedCSVError rejects a whole upload.
type MalformedCSVError struct {
	Reason  string
	Missing []string
	Err     error
}

func (e *MalformedCSVError) Error() string {
	msg := "malformed csv: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedCSVError) Is(target error) bool { return target == ErrMalformedCSV }

func (e *MalformedCSVError) Unwrap() error { return e.Err }

// MalformedCSV creates a MalformedCSVError.
func MalformedCSV(reason string, err error) *MalformedCSVError {
	return &MalformedCSVError{Reason: reason, Err: err}
}

// MissingColumns creates a MalformedCSVError listing required columns absent from the header.
func MissingColumns(missing []string) *MalformedCSVError {
	return &MalformedCSVError{
		Reason:  fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		Missing: missing,
	}
}

// StateError is returned when an operation is not legal in the upload's current status.
type StateError struct {
	UploadID string
	Status   string
	Op       string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("upload %s: cannot %s while %s", e.UploadID, e.Op, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// InvalidState creates a StateError.
func InvalidState(uploadID, status, op string) *StateError {
	return &StateError{UploadID: uploadID, Status: status, Op: op}
}

// TransitionError is returned for a status change outside the transition table.
// It also matches ErrInvalidState: callers see an illegal transition as an invalid state.
type TransitionError struct {
	UploadID string
	From     string
	To       string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("upload %s: invalid transition %s -> %s", e.UploadID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrInvalidState
}

// InvalidTransition creates a TransitionError.
func InvalidTransition(uploadID, from, to string) *TransitionError {
	return &TransitionError{UploadID: uploadID, From: from, To: to}
}

// NotFoundError reports an unknown id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound creates a NotFoundError.
func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError. Returns nil when err is nil and
// returns err unchanged when it is already classified.
func Storage(op string, err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsClassified reports whether err already carries one of the kinds above.
func IsClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMalformedCSV) ||
		errors.Is(err, ErrStorage)
}
