package email

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplateNotFound is returned when a templated send references a
// template that does not exist. It is caller-correctable and never retried.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateNotFoundError wraps ErrTemplateNotFound with the template name.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.Name)
}

func (e *TemplateNotFoundError) Unwrap() error { return ErrTemplateNotFound }

// FieldError is a single field-tagged validation violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every violation found in a request so callers
// can report them all in one response. It is detected before any side
// effect and never retried.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// SendError reports a delivery that could not be completed, either because
// the sender configuration was unusable or because every transport attempt
// failed. The message record, if one exists, is left in Failed state.
type SendError struct {
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SendError) Unwrap() error { return e.Err }

// StorageError reports a file-store collaborator failure. It surfaces to
// callers as service-unavailable.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("file storage %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
