// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package errors defines the typed error kinds shared across the
// orchestrator substrate (policy, contract, artifact, conversation,
// workflow, phase, bypass, persona, executor, audit). Every subsystem
// returns one of these kinds rather than an opaque error so that callers
// — and the audit log — can discriminate retryable failures from
// terminal ones without string matching.
package errors

import "fmt"

// Kind discriminates the error categories named in the orchestrator's
// error handling design. Kinds never carry a stack trace across the API
// boundary; see Error.Details for structured context instead.
type Kind string

const (
	// KindConfig marks a malformed manifest or policy document. Fatal at load.
	KindConfig Kind = "config_error"
	// KindValidation marks a caller-supplied input that violates an API contract.
	KindValidation Kind = "validation_error"
	// KindContractViolation marks a missing or below-threshold deliverable.
	// Carried inside a GateResult; may be recovered by remediation or bypass.
	KindContractViolation Kind = "contract_violation"
	// KindNodeTimeout marks a node that exceeded its configured timeout.
	KindNodeTimeout Kind = "node_timeout"
	// KindNodeFailure marks a node whose agent invocation returned an error.
	KindNodeFailure Kind = "node_failure"
	// KindDependencyError marks a node unreachable because an upstream dependency failed.
	KindDependencyError Kind = "dependency_error"
	// KindBypassRequired marks a gate that is failing and has no covering bypass.
	KindBypassRequired Kind = "bypass_required"
	// KindBypassRejected marks a bypass request or approval that was rejected.
	KindBypassRejected Kind = "bypass_rejected"
	// KindBypassExpired marks a bypass that lapsed past its expiration.
	KindBypassExpired Kind = "bypass_expired"
	// KindCancellation marks cooperative cancellation. Not logged as a failure.
	KindCancellation Kind = "cancellation_requested"
	// KindInternal marks an unexpected internal error. Never carries a raw stack trace.
	KindInternal Kind = "internal_error"
)

// Error is the structured, user-visible error shape returned at every API
// boundary: {kind, message, details?, retryable?} per spec.
type Error struct {
	Kind      Kind
	Message   string
	Details   map[string]any
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured context (e.g. missing file names, the
// offending cycle, the violating threshold) and returns the receiver for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithRetryable marks whether the caller should retry the operation.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write `errors.Is(err, errors.New(KindValidation, ""))`-style kind checks
// via the standard library's errors.Is against a sentinel built with KindOnly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// KindOnly builds a sentinel Error carrying only a Kind, for use with
// errors.Is(err, errors.KindOnly(KindValidation)).
func KindOnly(kind Kind) *Error {
	return &Error{Kind: kind}
}
