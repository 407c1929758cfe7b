package provider

import (
	"errors"
	"fmt"
)

// Common errors for provider operations.
var (
	// ErrNotFound indicates the zone or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an identical record already exists.
	ErrConflict = errors.New("record already exists")

	// ErrUnauthorized indicates authentication failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrProviderUnavailable indicates the provider API is unreachable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrJobFailed indicates an asynchronous write reached the error state.
	ErrJobFailed = errors.New("job failed")

	// ErrJobTimeout indicates an asynchronous write did not finish within the polling budget.
	ErrJobTimeout = errors.New("job did not complete")
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ErrConfigMissing creates an error for a missing required configuration field.
func ErrConfigMissing(field string) error {
	return &ConfigError{
		Field:   field,
		Message: "required but not set",
	}
}

// ErrConfigInvalid creates an error for an invalid configuration value.
func ErrConfigInvalid(field, value, message string) error {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider  string
	Operation string
	RecordID  string
	Err       error
}

func (e *ProviderError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("provider %s: %s %s: %v", e.Provider, e.Operation, e.RecordID, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Err:       err,
	}
}

// WrapRecordError wraps an error with provider context naming the record involved.
func WrapRecordError(provider, operation, recordID string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		RecordID:  recordID,
		Err:       err,
	}
}

// JobFailure reports an asynchronous write that failed or timed out.
// Err is ErrJobFailed or ErrJobTimeout.
type JobFailure struct {
	JobID   string
	State   JobState
	Message string
	Err     error
}

func (e *JobFailure) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("job %s: %v (state %s): %s", e.JobID, e.Err, e.State, e.Message)
	}
	return fmt.Sprintf("job %s: %v (state %s)", e.JobID, e.Err, e.State)
}

func (e *JobFailure) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a zone or record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error indicates a record already exists.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnauthorized returns true if the error indicates authentication failed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsProviderUnavailable returns true if the error indicates the provider is unreachable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsJobFailure returns true if an asynchronous write failed or timed out.
func IsJobFailure(err error) bool {
	return errors.Is(err, ErrJobFailed) || errors.Is(err, ErrJobTimeout)
}
