package errors

import (
	"fmt"
	"regexp"
	"strings"
)

// Code represents a validated error code with package prefix
type Code struct {
	value string
	class Class
}

// Class buckets codes into the client-visible failure taxonomy.
type Class int

const (
	ClassInternal Class = iota
	ClassNotFound
	ClassConflict
	ClassInvalidArgument
)

// Common error codes that can be used across packages
var (
	CommonInternal      = MustNewCode("common.internal")
	CommonNotFound      = MustNewCode("common.not_found").WithClass(ClassNotFound)
	CommonValidation    = MustNewCode("common.validation").WithClass(ClassInvalidArgument)
	CommonTimeout       = MustNewCode("common.timeout")
	CommonConflict      = MustNewCode("common.conflict").WithClass(ClassConflict)
	CommonUnsupported   = MustNewCode("common.unsupported").WithClass(ClassInvalidArgument)
	CommonInvalidInput  = MustNewCode("common.invalid_input").WithClass(ClassInvalidArgument)
	CommonAlreadyExists = MustNewCode("common.already_exists").WithClass(ClassConflict)
)

// Validation regex: package.name format, dots allowed for sub-groups
var codeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

// NewCode creates a new validated Code
func NewCode(s string) (Code, error) {
	if !codeRegex.MatchString(s) {
		return Code{}, fmt.Errorf("invalid code format '%s': must be 'package.name' (lowercase, underscores, dots only)", s)
	}
	return Code{value: s}, nil
}

// MustNewCode creates a new Code or panics if invalid
func MustNewCode(s string) Code {
	code, err := NewCode(s)
	if err != nil {
		panic(err)
	}
	return code
}

// WithClass returns a copy of the code carrying the given failure class.
// Codes default to ClassInternal.
func (c Code) WithClass(class Class) Code {
	c.class = class
	return c
}

// Class returns the failure class of the code
func (c Code) Class() Class {
	return c.class
}

// String returns the string representation of the Code
func (c Code) String() string {
	return c.value
}

// Package returns the package prefix from the code
func (c Code) Package() string {
	if idx := strings.Index(c.value, "."); idx != -1 {
		return c.value[:idx]
	}
	return ""
}

// Name returns the name part from the code
func (c Code) Name() string {
	if idx := strings.Index(c.value, "."); idx != -1 {
		return c.value[idx+1:]
	}
	return c.value
}

// IsValid returns true if the code is properly formatted
func (c Code) IsValid() bool {
	return codeRegex.MatchString(c.value)
}

// Equals checks if two codes are equal
func (c Code) Equals(other Code) bool {
	return c.value == other.value
}
