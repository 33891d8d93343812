// Package pgerr defines the error kinds used across permgate, grounded on
// the original implementation's error enum: each kind carries structured
// context rather than being its own Go type, so callers match on Kind with
// errors.As instead of maintaining a type switch per failure mode.
package pgerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the distinct failure modes a cascade turn can hit.
type Kind string

const (
	SessionNotRegistered Kind = "session-not-registered"
	SessionDisabled      Kind = "session-disabled"
	RoleNotFound         Kind = "role-not-found"
	PolicyNotFound       Kind = "policy-not-found"
	InvalidPolicy        Kind = "invalid-policy"
	ConfigParse          Kind = "config-parse"
	Storage              Kind = "storage"
	IndexBuild           Kind = "index-build"
	Embedding            Kind = "embedding"
	Supervisor           Kind = "supervisor"
	SupervisorTimeout    Kind = "supervisor-timeout"
	HumanTimeout         Kind = "human-timeout"
	IPC                  Kind = "ipc"
	SocketNotFound       Kind = "socket-not-found"
	RegistrationTimeout  Kind = "registration-timeout"
	GlobPattern          Kind = "glob-pattern"
	IO                   Kind = "io"
	Serialization        Kind = "serialization"
	API                  Kind = "api"
)

// Error is a kind-tagged error carrying structured context for logging and
// for the hook process's "deny with reason naming the failure kind" behavior.
type Error struct {
	Kind    Kind
	Context map[string]interface{}
	Msg     string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		if e.Wrapped != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Wrapped)
		}
		return string(e.Kind)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind wrapping an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Wrapped: err}
}

// WithContext attaches structured context fields (paths, session ids,
// timeouts) and returns the same *Error for chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// Sentinel errors for simple not-found cases that don't need structured
// context, grounded on the teacher's sentinel-error-per-repository pattern.
var (
	ErrNotFound      = errors.New("permgate: record not found")
	ErrAlreadyExists = errors.New("permgate: record already exists")
)
