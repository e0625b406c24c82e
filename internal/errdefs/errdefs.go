// Package errdefs defines the error taxonomy shared by registries, factories,
// runtime modules and backend plugins.
//
// Every error produced by the dispatch layer matches exactly one of the
// sentinel kinds below through errors.Is, while still wrapping the
// underlying cause.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnknownRuntime      = errors.New("unknown runtime")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrArityMismatch       = errors.New("arity mismatch")
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrConstructionFailure = errors.New("construction failure")
	ErrExecutionFailure    = errors.New("execution failure")
	ErrUseAfterRelease     = errors.New("use after release")
)

// Operations reported in Error.Op.
const (
	OpRegister     = "register"
	OpLookup       = "lookup"
	OpImport       = "import"
	OpInvoke       = "invoke"
	OpConstruction = "construction"
	OpExecution    = "execution"
	OpRelease      = "release"
)

// Error carries the registry, the name and the operation involved in a
// failure, classified by Kind.
type Error struct {
	Kind     error  // One of the Err* sentinels.
	Op       string // High-level operation in progress.
	Registry string // Registry or lookup that failed (optional).
	Name     string // Name that was missing or mismatched (optional).
	Detail   string // Free-form detail (optional).
	Err      error  // Underlying cause (optional).
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Registry != "" {
		b.WriteString(e.Registry)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a failed name lookup in registry during op.
func NotFound(op, registry, name string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Registry: registry, Name: name}
}

// UnknownRuntime reports a runtime name with no implementation bound in registry.
func UnknownRuntime(op, registry, runtime string) *Error {
	return &Error{Kind: ErrUnknownRuntime, Op: op, Registry: registry, Name: runtime}
}

// Arity reports a buffer or argument count that does not match the calling convention.
func Arity(op, what string, want, got int) *Error {
	return &Error{
		Kind:   ErrArityMismatch,
		Op:     op,
		Detail: fmt.Sprintf("%s: want %d, got %d", what, want, got),
	}
}

// Shape reports a buffer whose shape does not match what name expects.
func Shape(op, name string, want, got any) *Error {
	return &Error{
		Kind:   ErrShapeMismatch,
		Op:     op,
		Name:   name,
		Detail: fmt.Sprintf("want %v, got %v", want, got),
	}
}

// Type reports a buffer or argument whose type does not match what name expects.
func Type(op, name string, want, got any) *Error {
	return &Error{
		Kind:   ErrTypeMismatch,
		Op:     op,
		Name:   name,
		Detail: fmt.Sprintf("want %v, got %v", want, got),
	}
}

// Construction wraps err as a ConstructionFailure for runtime.
func Construction(runtime string, err error) *Error {
	return &Error{Kind: ErrConstructionFailure, Op: OpConstruction, Name: runtime, Err: err}
}

// Execution wraps err as an ExecutionFailure for runtime.
func Execution(runtime string, err error) *Error {
	return &Error{Kind: ErrExecutionFailure, Op: OpExecution, Name: runtime, Err: err}
}

// UseAfterRelease reports a call on a released module.
func UseAfterRelease(op, runtime string) *Error {
	return &Error{Kind: ErrUseAfterRelease, Op: op, Name: runtime}
}

// UnsupportedOperatorError is returned when a backend is asked to build a
// compute function over a graph containing an operator it cannot execute.
type UnsupportedOperatorError struct {
	OpType  string // Offending operator type.
	Layer   string // Layer carrying the operator.
	Runtime string // Runtime that rejected it.
}

// Error implements the error interface.
func (e *UnsupportedOperatorError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("%s: unsupported operator %q (layer %q)", e.Runtime, e.OpType, e.Layer)
	}
	return fmt.Sprintf("%s: unsupported operator %q", e.Runtime, e.OpType)
}

// Is matches ErrUnsupportedOperator.
func (e *UnsupportedOperatorError) Is(target error) bool {
	return target == ErrUnsupportedOperator
}

// Classified reports whether err already belongs to one of the error kinds.
func Classified(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

var kinds = []error{
	ErrNotFound,
	ErrUnknownRuntime,
	ErrUnsupportedOperator,
	ErrArityMismatch,
	ErrShapeMismatch,
	ErrTypeMismatch,
	ErrConstructionFailure,
	ErrExecutionFailure,
	ErrUseAfterRelease,
}
