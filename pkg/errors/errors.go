package errors

import (
	"errors"
	"fmt"
	"strings"
)

// SourceError is a pipeline-fatal problem with an input feed: the file is
// missing, unreadable, or lacks the structure needed to build records.
type SourceError struct {
	Entity  string
	File    string
	Line    int
	Message string
	cause   error
}

func NewSourceError(msg string) *SourceError {
	return &SourceError{Message: msg}
}

// NewSourceErrorf creates a SourceError with a formatted message. A %w verb
// records the wrapped error as the cause.
func NewSourceErrorf(format string, args ...any) *SourceError {
	err := fmt.Errorf(format, args...)
	return &SourceError{
		Message: err.Error(),
		cause:   errors.Unwrap(err),
	}
}

// WrapSourceError converts err into a SourceError, keeping it as the cause.
func WrapSourceError(err error) *SourceError {
	if err == nil {
		return nil
	}

	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		return sourceErr
	}

	return &SourceError{
		Message: err.Error(),
		cause:   err,
	}
}

func (e *SourceError) Error() string {
	path := []string{}
	if e.Entity != "" {
		path = append(path, fmt.Sprintf("entity '%s'", e.Entity))
	}
	if e.File != "" {
		path = append(path, fmt.Sprintf("file '%s'", e.File))
	}
	if e.Line > 0 {
		path = append(path, fmt.Sprintf("line %d", e.Line))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *SourceError) Unwrap() error {
	return e.cause
}

func (e *SourceError) AddEntity(entity string) *SourceError {
	e.Entity = entity
	return e
}

func (e *SourceError) AddFile(file string) *SourceError {
	e.File = file
	return e
}

func (e *SourceError) AddLine(line int) *SourceError {
	e.Line = line
	return e
}

func IsSourceError(err error) bool {
	var sourceErr *SourceError
	return errors.As(err, &sourceErr)
}

// LoadError is a failure writing clean artifacts into the sink. The
// transaction has been rolled back when it is returned.
type LoadError struct {
	Entity string
	cause  error
}

func NewLoadError(entity string, cause error) *LoadError {
	return &LoadError{Entity: entity, cause: cause}
}

func (e *LoadError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("load failed: %v", e.cause)
	}
	return fmt.Sprintf("load '%s' failed: %v", e.Entity, e.cause)
}

func (e *LoadError) Unwrap() error {
	return e.cause
}

func IsLoadError(err error) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr)
}
