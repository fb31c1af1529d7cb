// Package errors defines the structured error taxonomy shared by the
// catalog, renderer, publisher and dev server.
//
// Discovery and build-time errors are fatal and travel up to the CLI.
// Read and render errors met while serving a request are recoverable: the
// request is handed to the next handler instead.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind represents different categories of errors.
type Kind string

const (
	KindDiscovery Kind = "discovery"
	KindRead      Kind = "read"
	KindRender    Kind = "render"
	KindConfig    Kind = "config"
	KindPublish   Kind = "publish"
)

// Common error codes.
const (
	CodeBadPattern     = "ERR_BAD_PATTERN"
	CodeRootMissing    = "ERR_ROOT_MISSING"
	CodeReadFailed     = "ERR_READ_FAILED"
	CodeAmbiguousName  = "ERR_AMBIGUOUS_NAME"
	CodeMalformedSVG   = "ERR_MALFORMED_SVG"
	CodeInvalidScale   = "ERR_INVALID_SCALE"
	CodeCanvasTooLarge = "ERR_CANVAS_TOO_LARGE"
	CodeEncodeFailed   = "ERR_ENCODE_FAILED"
	CodeEmitFailed     = "ERR_EMIT_FAILED"
	CodeConfigInvalid  = "ERR_CONFIG_INVALID"
)

// Error is the structured error carried through svgrender.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Path is the source file involved, if any.
	Path string
	// Name is the logical asset name, if any.
	Name string
	// Scale is the render scale, zero when not applicable.
	Scale int
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Name != "" {
		asset := "asset:" + e.Name
		if e.Scale > 0 {
			asset += fmt.Sprintf("@%dx", e.Scale)
		}
		parts = append(parts, asset)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same kind and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
	}
	return false
}

// Recoverable reports whether the error can be contained to a single
// request or file.
func (e *Error) Recoverable() bool {
	return e.Kind == KindRead || e.Kind == KindRender
}

// WithPath sets the source file path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithAsset sets the logical name and scale.
func (e *Error) WithAsset(name string, scale int) *Error {
	e.Name = name
	e.Scale = scale
	return e
}

// NewDiscoveryError creates a pattern expansion error.
func NewDiscoveryError(code, message string, cause error) *Error {
	return &Error{Kind: KindDiscovery, Code: code, Message: message, Cause: cause}
}

// NewReadError creates a per-file I/O error.
func NewReadError(path string, cause error) *Error {
	return &Error{Kind: KindRead, Code: CodeReadFailed, Message: "reading source", Path: path, Cause: cause}
}

// NewRenderError creates a render error.
func NewRenderError(code, message string, cause error) *Error {
	return &Error{Kind: KindRender, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *Error {
	return &Error{Kind: KindConfig, Code: CodeConfigInvalid, Message: message}
}

// NewPublishError creates an artifact emission error.
func NewPublishError(filename string, cause error) *Error {
	return &Error{Kind: KindPublish, Code: CodeEmitFailed, Message: "emitting " + filename, Cause: cause}
}

// IsKind reports whether any error in err's chain is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// IsRecoverable reports whether err can be contained to a single request.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable()
	}
	return false
}

// As is errors.As, re-exported so callers importing this package do not
// need to alias the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is, re-exported for the same reason as As.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
