package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExamNotFound indicates the exam does not exist (or was deleted).
	ErrExamNotFound = errors.New("exam not found")
	// ErrResultNotFound indicates the student has no result for the exam.
	ErrResultNotFound = errors.New("result not found")
	// ErrExamInactive is returned when a student submits to an exam that is not open.
	ErrExamInactive = errors.New("exam is not active")
	// ErrDuplicateSubmission is returned under the reject policy for a second submission.
	ErrDuplicateSubmission = errors.New("student already submitted this exam")
	// ErrInvalidCredentials is returned by the identity provider on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized means the bearer token is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller's role may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnsupported is returned by stores that cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by this store")
	// ErrIncomplete is the parent of every missing-input error.
	ErrIncomplete = errors.New("input incomplete")
	// ErrUpstream is the parent of failures reported by a remote exam API.
	ErrUpstream = errors.New("upstream request failed")
)

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrIncomplete }

// IncompleteSubmissionError lists the questions left unanswered.
type IncompleteSubmissionError struct {
	Missing []string
}

func (e *IncompleteSubmissionError) Error() string {
	return "unanswered questions: " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteSubmissionError) Unwrap() error { return ErrIncomplete }

// UpstreamError carries the message of a failed remote call.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream request failed with status %d", e.StatusCode)
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }
