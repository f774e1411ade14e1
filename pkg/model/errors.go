package model

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("event not found")
	ErrInvalidEvent = errors.New("invalid event")
	// ErrCanceled marks work abandoned because its context ended. Callers
	// must not treat it as a backend failure.
	ErrCanceled = errors.New("operation canceled")
)

// IsCanceled reports whether err comes from an ended context. Drivers that
// flatten the context error into their own message are recognized by text.
func IsCanceled(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, context.Canceled.Error()) ||
		strings.Contains(msg, context.DeadlineExceeded.Error())
}
