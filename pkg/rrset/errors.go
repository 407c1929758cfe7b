package rrset

import (
	"errors"
	"fmt"
	"strings"
)

// ArgumentError reports a caller contract violation detected before any
// provider call was made.
type ArgumentError struct {
	Field   string
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
}

// UnsupportedProfileError is returned when no profile API accepts the
// profile kinds carried by a record set.
type UnsupportedProfileError struct {
	Kinds []Kind
}

func (e *UnsupportedProfileError) Error() string {
	names := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("unsupported profile: %s", strings.Join(names, ", "))
}

// IsArgumentError returns true if err is or wraps an *ArgumentError.
func IsArgumentError(err error) bool {
	var target *ArgumentError
	return errors.As(err, &target)
}

// IsUnsupportedProfile returns true if err is or wraps an *UnsupportedProfileError.
func IsUnsupportedProfile(err error) bool {
	var target *UnsupportedProfileError
	return errors.As(err, &target)
}
