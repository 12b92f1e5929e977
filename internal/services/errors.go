package services

import (
	"errors"
	"fmt"
)

// ErrPersistence wraps a failed state write. The in-memory mutation is kept.
var ErrPersistence = errors.New("tracking state not persisted")

var (
	ErrEmptyCollection  = errors.New("collection is required")
	ErrInvalidThreshold = errors.New("threshold must be a positive percentage")
)

// FailureKind classifies a failed quote fetch.
type FailureKind int

const (
	FailureTimeout FailureKind = iota + 1
	FailureRateLimited
	FailureProvider
	FailureNetwork
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureRateLimited:
		return "rate limited"
	case FailureProvider:
		return "provider error"
	case FailureNetwork:
		return "network error"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// FetchError is returned for every failed FetchQuote call.
type FetchError struct {
	Kind       FailureKind
	Collection string
	Status     int // HTTP status, 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Collection, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// FailureKindOf reports the kind of a fetch failure, or 0 if err is not one.
func FailureKindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
