package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures so callers can react without parsing messages
type ErrorKind string

const (
	KindParse                 ErrorKind = "parse"
	KindIndexOutOfRange       ErrorKind = "index_out_of_range"
	KindArchive               ErrorKind = "archive"
	KindWhiteoutTargetMissing ErrorKind = "whiteout_target_missing"
	KindPath                  ErrorKind = "path"
	KindIO                    ErrorKind = "io"
	KindAcquire               ErrorKind = "acquire"
	KindConfiguration         ErrorKind = "configuration"
)

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrParse                 = &Error{Kind: KindParse}
	ErrIndexOutOfRange       = &Error{Kind: KindIndexOutOfRange}
	ErrArchive               = &Error{Kind: KindArchive}
	ErrWhiteoutTargetMissing = &Error{Kind: KindWhiteoutTargetMissing}
	ErrPath                  = &Error{Kind: KindPath}
	ErrIO                    = &Error{Kind: KindIO}
	ErrAcquire               = &Error{Kind: KindAcquire}
	ErrConfiguration         = &Error{Kind: KindConfiguration}
)

// Error carries the kind of failure plus enough context (layer, path) to diagnose it
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Operation  string    `json:"operation,omitempty"`
	Layer      string    `json:"layer,omitempty"`
	Path       string    `json:"path,omitempty"`
	Message    string    `json:"message"`
	Cause      error     `json:"-"`
	Retryable  bool      `json:"retryable"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Operation != "" {
		b.WriteString(" ")
		b.WriteString(e.Operation)
	}
	if e.Layer != "" {
		fmt.Fprintf(&b, " (layer %s)", e.Layer)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a sentinel of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Operation == "" && t.Cause == nil && t.Kind == e.Kind
}

// IsRetryable returns true if the error might succeed on retry
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// GetUserFriendlyMessage returns the message with the suggestion appended
func (e *Error) GetUserFriendlyMessage() string {
	msg := e.Error()
	if e.Suggestion != "" {
		msg += "\n\nSuggestion: " + e.Suggestion
	}
	return msg
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrorBuilder helps construct Error instances
type ErrorBuilder struct {
	err Error
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder() *ErrorBuilder {
	return &ErrorBuilder{}
}

// Kind sets the error kind
func (b *ErrorBuilder) Kind(kind ErrorKind) *ErrorBuilder {
	b.err.Kind = kind
	return b
}

// Operation sets the operation context
func (b *ErrorBuilder) Operation(operation string) *ErrorBuilder {
	b.err.Operation = operation
	return b
}

// Layer sets the layer the failure happened in
func (b *ErrorBuilder) Layer(layer string) *ErrorBuilder {
	b.err.Layer = layer
	return b
}

// Path sets the filesystem or archive path involved
func (b *ErrorBuilder) Path(path string) *ErrorBuilder {
	b.err.Path = path
	return b
}

// Message sets the error message
func (b *ErrorBuilder) Message(message string) *ErrorBuilder {
	b.err.Message = message
	return b
}

// Messagef sets the error message with formatting
func (b *ErrorBuilder) Messagef(format string, args ...interface{}) *ErrorBuilder {
	b.err.Message = fmt.Sprintf(format, args...)
	return b
}

// Cause sets the underlying error
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Retryable sets whether the error is retryable
func (b *ErrorBuilder) Retryable(retryable bool) *ErrorBuilder {
	b.err.Retryable = retryable
	return b
}

// Suggestion sets a user-friendly suggestion
func (b *ErrorBuilder) Suggestion(suggestion string) *ErrorBuilder {
	b.err.Suggestion = suggestion
	return b
}

// Build creates the Error instance
func (b *ErrorBuilder) Build() *Error {
	e := b.err
	if e.Kind == "" {
		e.Kind = KindIO
	}
	return &e
}

// NewParseError creates an error for malformed manifest or config documents
func NewParseError(operation, message string, cause error) *Error {
	return NewErrorBuilder().
		Kind(KindParse).
		Operation(operation).
		Message(message).
		Cause(cause).
		Suggestion("Check that the archive is a docker-save style image export").
		Build()
}

// NewIndexError creates an error for a layer reference outside the available layers
func NewIndexError(ref, total int) *Error {
	return NewErrorBuilder().
		Kind(KindIndexOutOfRange).
		Operation("resolve_layer").
		Messagef("invalid layer number %d, image has %d layers", ref, total).
		Suggestion("Run 'layer list' to see the available layers").
		Build()
}

// NewArchiveError creates an error for an unreadable or malformed tar entry
func NewArchiveError(operation, layer string, cause error) *Error {
	return NewErrorBuilder().
		Kind(KindArchive).
		Operation(operation).
		Layer(layer).
		Message("unreadable archive").
		Cause(cause).
		Build()
}

// NewWhiteoutError creates an error for a whiteout whose target is absent
func NewWhiteoutError(layer, target string, cause error) *Error {
	return NewErrorBuilder().
		Kind(KindWhiteoutTargetMissing).
		Operation("apply_whiteout").
		Layer(layer).
		Path(target).
		Message("whiteout target does not exist in the composed tree").
		Cause(cause).
		Suggestion("The image may be corrupt or use an unsupported layout").
		Build()
}

// NewPathError creates an error for a path that cannot be made safe
func NewPathError(operation, path, message string) *Error {
	return NewErrorBuilder().
		Kind(KindPath).
		Operation(operation).
		Path(path).
		Message(message).
		Build()
}

// NewIOError creates a filesystem-related error
func NewIOError(operation, path string, cause error) *Error {
	return NewErrorBuilder().
		Kind(KindIO).
		Operation(operation).
		Path(path).
		Cause(cause).
		Suggestion("Check file paths and permissions").
		Build()
}

// NewAcquireError creates an error raised while fetching an image from a daemon or registry
func NewAcquireError(operation, message string, cause error) *Error {
	return NewErrorBuilder().
		Kind(KindAcquire).
		Operation(operation).
		Message(message).
		Cause(cause).
		Retryable(true).
		Suggestion("Check daemon or registry connectivity and credentials").
		Build()
}

// NewConfigurationError creates an error for invalid settings
func NewConfigurationError(operation, message string, cause error) *Error {
	return NewErrorBuilder().
		Kind(KindConfiguration).
		Operation(operation).
		Message(message).
		Cause(cause).
		Build()
}

// WrapError wraps an existing error as an IO error unless it already is an *Error
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var e *Error
	if stderrors.As(err, &e) {
		return err
	}

	return NewErrorBuilder().
		Kind(KindIO).
		Operation(operation).
		Cause(err).
		Build()
}
