package errors

import (
	"fmt"
	"strings"
)

// IsIcecapError reports whether err is our Error type
func IsIcecapError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// GetContext extracts the context map from our errors
func GetContext(err error) map[string]string {
	if e, ok := err.(*Error); ok {
		return e.Context
	}
	return nil
}

// GetCode returns the error code string, or "" for foreign errors
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code.String()
	}
	return ""
}

// ClassOf returns the failure class of an error. Foreign errors are internal.
func ClassOf(err error) Class {
	if e, ok := err.(*Error); ok {
		return e.Code.Class()
	}
	return ClassInternal
}

// HasClass reports whether err carries the given failure class
func HasClass(err error, class Class) bool {
	return err != nil && ClassOf(err) == class
}

// FormatError renders an error for logging
func FormatError(err error) string {
	if e, ok := err.(*Error); ok {
		var parts []string
		parts = append(parts, fmt.Sprintf("Code: %s", e.Code))
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

		if len(e.Context) > 0 {
			parts = append(parts, "Context:")
			for k, v := range e.Context {
				parts = append(parts, fmt.Sprintf("  %s: %v", k, v))
			}
		}

		if e.Cause != nil {
			parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
		}

		return strings.Join(parts, "\n")
	}
	return err.Error()
}

// AsError converts any error to the internal Error format. Existing *Error
// values pass through; everything else is wrapped as a generic internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	if internalErr, ok := err.(*Error); ok {
		return internalErr
	}

	return New(CommonInternal, err.Error(), err)
}
