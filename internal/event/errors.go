package event

import (
	"errors"
	"fmt"
)

// RejectionKind is the stable machine-readable classification of a refused
// mutation. Kinds are recoverable by the caller; none is fatal.
type RejectionKind string

const (
	// KindPhaseClosed marks an operation attempted outside its phase window.
	KindPhaseClosed RejectionKind = "phase_closed"
	// KindInvalidTarget marks malformed or missing nomination content.
	KindInvalidTarget RejectionKind = "invalid_target"
	// KindInvalidFinalist marks a vote referencing a missing or mismatched finalist.
	KindInvalidFinalist RejectionKind = "invalid_finalist"
	// KindDuplicateVote marks a second vote for the same (user, category) pair.
	KindDuplicateVote RejectionKind = "duplicate_vote"
	// KindPositionTaken marks a reveal into an occupied final position.
	KindPositionTaken RejectionKind = "position_taken"
	// KindAlreadyRevealed marks a reveal of an already revealed finalist.
	KindAlreadyRevealed RejectionKind = "already_revealed"
)

// Rejection is a refused mutation: a stable kind plus a human-readable
// message the presentation layer may localize or replace.
type Rejection struct {
	kind    RejectionKind
	message string
}

func newRejection(kind RejectionKind, message string) *Rejection {
	return &Rejection{kind: kind, message: message}
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.kind, r.message)
}

// Kind returns the machine-readable classification.
func (r *Rejection) Kind() RejectionKind {
	return r.kind
}

// Message returns the human-readable explanation.
func (r *Rejection) Message() string {
	return r.message
}

// RejectionKindOf extracts the rejection kind from err, reporting whether err
// is a rejection at all.
func RejectionKindOf(err error) (RejectionKind, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.kind, true
	}
	return "", false
}

// ServiceError wraps infrastructure failures with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
