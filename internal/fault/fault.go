// Package fault defines the error kinds of an upload run.
//
// Every error that can end a run carries a [Kind]. The kind decides the
// process exit code and is the only thing the run controller inspects;
// everything else about the error is for the user.
//
// Per-record indexing failures are not errors. They are reported as data by
// the bulk uploader and never travel through this package.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a run-ending error.
type Kind int

const (
	// KindUnknown is any error without an explicit kind.
	KindUnknown Kind = iota
	// KindUsage means required options are missing. Help is shown.
	KindUsage
	// KindConfig means an option is present but invalid.
	KindConfig
	// KindConstruction means the input could not be opened or its header is malformed.
	KindConstruction
	// KindTransport means the cluster rejected or never received a bulk request.
	KindTransport
	// KindCancelled means the run context was cancelled.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindConfig:
		return "configuration"
	case KindConstruction:
		return "construction"
	case KindTransport:
		return "transport"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Exit codes returned by the run controller.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

// Error is a classified error.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "read header"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Usage, Config, Construction and Transport are shorthands for New.
func Usage(op string, err error) *Error        { return New(KindUsage, op, err) }
func Config(op string, err error) *Error       { return New(KindConfig, op, err) }
func Construction(op string, err error) *Error { return New(KindConstruction, op, err) }
func Transport(op string, err error) *Error    { return New(KindTransport, op, err) }

// KindOf returns the kind of the outermost classified error in err's chain.
// Context cancellation is reported as KindCancelled even when unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case KindOf(err) == KindUsage:
		return ExitUsage
	default:
		return ExitFatal
	}
}
