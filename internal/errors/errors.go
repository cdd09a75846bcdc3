// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. Configuration, authentication and I/O problems are user
// errors (exit code 1); anything unclassified is an internal error (exit code 2).
//
// The package supports wrapping underlying errors while maintaining error kind
// information, making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ConfigInvalid indicates a missing or invalid configuration parameter,
	// a missing required input column, or an unmapped input/output table.
	ConfigInvalid Kind = "config_invalid"
	// AuthFailed indicates authentication retries were exhausted or the
	// authentication endpoint returned a non-retryable status.
	AuthFailed Kind = "auth_failed"
	// QueryFailed indicates a GraphQL query failed at the HTTP or GraphQL level.
	QueryFailed Kind = "query_failed"
	// IOFailed indicates the input table could not be read or the output
	// table or manifest could not be written.
	IOFailed Kind = "io_failed"
	// Unexpected indicates an internal failure not covered by other kinds.
	Unexpected Kind = "unexpected"
)

// Exit codes returned by the process, per platform convention.
const (
	ExitOK       = 0
	ExitUser     = 1
	ExitInternal = 2
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ExitCode maps an error to the process exit code. Configuration, auth,
// query and I/O failures are user errors; everything else is internal.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *E
	if stderrors.As(err, &e) {
		switch e.Kind {
		case ConfigInvalid, AuthFailed, QueryFailed, IOFailed:
			return ExitUser
		}
	}
	return ExitInternal
}
