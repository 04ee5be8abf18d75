package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSelector       = errors.New("invalid selector")
	ErrMissingInput          = errors.New("missing input")
	ErrConfiguration         = errors.New("server configuration error")
	ErrUnsupportedAttachment = errors.New("unsupported attachment type")
	ErrAttachmentTooLarge    = errors.New("attachment too large")
)

// SelectorError reports a provider or style identifier that did not resolve.
type SelectorError struct {
	Kind  string // "model" or "response style"
	Value string
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

func (e *SelectorError) Is(target error) bool {
	return target == ErrInvalidSelector
}

// UpstreamError is a non-success HTTP response from the inference provider.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error [%d]: %s", e.Status, e.Message)
}

// TransportError is a network failure reaching the inference provider.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "failed to reach upstream: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
