// Package pipeerr defines the closed error taxonomy shared by the
// repository manager, the pipe manager and the daemon façade.
//
// Every error the core produces carries a Kind so the RPC adapter can
// classify it as a user fault (invalid argument) or an internal failure
// without string-matching messages.
package pipeerr

import (
	"fmt"
)

// Kind identifies one of the error categories from the design's error
// taxonomy.
type Kind string

const (
	KindIO            Kind = "io"
	KindPath          Kind = "path"
	KindChmod         Kind = "chmod"
	KindChown         Kind = "chown"
	KindLink          Kind = "link"
	KindPipe          Kind = "pipe"
	KindResource      Kind = "resource"
	KindServiceManager Kind = "service_manager"
	KindYAML          Kind = "yaml"
	KindAddrParse     Kind = "addr_parse"
	KindEnv           Kind = "env"
	KindTransport     Kind = "transport"
)

// ResourceKind distinguishes which artifact kind a Resource error
// refers to.
type ResourceKind string

const (
	ResourceApp      ResourceKind = "app"
	ResourceCatalogs ResourceKind = "catalogs"
)

func (k ResourceKind) String() string { return string(k) }

// PipeOp identifies the pipe-manager operation a Pipe error occurred
// during.
type PipeOp string

const (
	PipeOpCreate     PipeOp = "Create"
	PipeOpStart      PipeOp = "Start"
	PipeOpStop       PipeOp = "Stop"
	PipeOpStatus     PipeOp = "Status"
	PipeOpRemove     PipeOp = "Remove"
	PipeOpRegister   PipeOp = "Register"
	PipeOpDeregister PipeOp = "Deregister"
)

func (op PipeOp) String() string { return string(op) }

// Error is the structured error type returned by every package in the
// core. It is never constructed directly outside this package; use the
// per-kind constructors below (IO, Yaml, Pipe, Resource, ...).
type Error struct {
	kind    Kind
	message string
	// optional structured fields, populated depending on kind
	permission string
	path       string
	from       string
	to         string
	user       string
	group      string
	operation  PipeOp
	resource   ResourceKind
	cause      error
}

func (e *Error) Error() string {
	switch e.kind {
	case KindChmod:
		return fmt.Sprintf("chmod error, permission: %q, path: %q, detail: %q", e.permission, e.path, e.message)
	case KindChown:
		return fmt.Sprintf("chown error, user: %q, group: %q, path: %q, detail: %q", e.user, e.group, e.path, e.message)
	case KindLink:
		return fmt.Sprintf("link error, from: %q, to: %q, detail: %q", e.from, e.to, e.message)
	case KindPath:
		return fmt.Sprintf("path error, operation: %q, detail: %q", e.operation, e.message)
	case KindPipe:
		return fmt.Sprintf("pipe error, operation: %s, detail: %q", e.operation, e.message)
	case KindResource:
		return fmt.Sprintf("pull repository error, resource: %s, detail: %v", e.resource, e.cause)
	case KindServiceManager:
		return fmt.Sprintf("service manager error, detail: %v", e.cause)
	case KindYAML:
		return fmt.Sprintf("yaml error, detail: %v", e.cause)
	case KindIO:
		return fmt.Sprintf("io error, detail: %v", e.cause)
	case KindAddrParse, KindEnv, KindTransport:
		return fmt.Sprintf("%s error, detail: %s", e.kind, e.message)
	default:
		return e.message
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// UserFault reports whether this error should be surfaced to an RPC
// caller as invalid-argument (true) rather than internal (false).
// User-fault classes are missing artifact, unknown id, bad
// precondition, malformed descriptor.
func (e *Error) UserFault() bool {
	switch e.kind {
	case KindPipe, KindResource, KindPath:
		return true
	default:
		return false
	}
}

func IO(cause error) *Error { return &Error{kind: KindIO, cause: cause} }

func Yaml(cause error) *Error { return &Error{kind: KindYAML, cause: cause} }

func ServiceManager(cause error) *Error { return &Error{kind: KindServiceManager, cause: cause} }

func Path(operation PipeOp, message string) *Error {
	return &Error{kind: KindPath, operation: operation, message: message}
}

func Chmod(permission, path, message string) *Error {
	return &Error{kind: KindChmod, permission: permission, path: path, message: message}
}

func Chown(user, group, path, message string) *Error {
	return &Error{kind: KindChown, user: user, group: group, path: path, message: message}
}

func Link(from, to, message string) *Error {
	return &Error{kind: KindLink, from: from, to: to, message: message}
}

func Pipe(operation PipeOp, message string) *Error {
	return &Error{kind: KindPipe, operation: operation, message: message}
}

func Resource(resource ResourceKind, cause error) *Error {
	return &Error{kind: KindResource, resource: resource, cause: cause}
}

func AddrParse(message string) *Error { return &Error{kind: KindAddrParse, message: message} }

func Env(message string) *Error { return &Error{kind: KindEnv, message: message} }

func Transport(message string) *Error { return &Error{kind: KindTransport, message: message} }

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.kind == kind
}
