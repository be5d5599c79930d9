package main

import (
	"errors"
	"fmt"
)

// ErrorKind labels a failure for per-record reporting. Misconfigured is the
// only fatal kind; everything else skips the record and the run continues.
type ErrorKind string

const (
	ErrKindMisconfigured  ErrorKind = "misconfigured"
	ErrKindIO             ErrorKind = "io"
	ErrKindLLMUnavailable ErrorKind = "llm_unavailable"
	ErrKindLLMMalformed   ErrorKind = "llm_malformed"
)

type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }

func (e *KindError) Unwrap() error { return e.Err }

func errKind(kind ErrorKind, format string, args ...any) error {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the error kind from anywhere in the chain. Unlabelled
// errors are reported as IO since they only arise from transport paths.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ErrKindIO
}
