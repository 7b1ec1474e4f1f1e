package errors

import (
	"errors"
	"fmt"
)

// Application-specific errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("resource conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrQueueEmpty         = errors.New("queue empty")
)

// ConfigurationError indicates a source config is missing a required field.
// Fatal for that source's run; never retried.
type ConfigurationError struct {
	Platform string
	Field    string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s adapter requires config field '%s'", e.Platform, e.Field)
}

// TransportError indicates an upstream HTTP/network failure or timeout.
// Retryable by the caller's retry policy.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error: %s returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport error: %s: %v", e.URL, e.Err)
}

func (e TransportError) Unwrap() error {
	return e.Err
}

// ParseError indicates a malformed feed or payload item. The offending item
// is skipped, not the whole batch.
type ParseError struct {
	Source string
	Detail string
	Err    error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s: %v", e.Source, e.Detail, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// DeliveryError indicates a notification channel send failed. Retried with
// backoff, then dead-lettered.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("delivery error on channel %s: %v", e.Channel, e.Err)
}

func (e DeliveryError) Unwrap() error {
	return e.Err
}

// FusionInputError indicates a normalized event is missing a required
// correlation field. The event is dropped with a warning.
type FusionInputError struct {
	PostKey string
	Missing string
}

func (e FusionInputError) Error() string {
	return fmt.Sprintf("fusion input error for %s: missing %s", e.PostKey, e.Missing)
}

// StoreError represents a persistence-layer error.
type StoreError struct {
	Operation string
	Err       error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Operation, e.Err)
}

func (e StoreError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether an error is worth retrying. Configuration and
// parse failures never are; transport and delivery failures always are.
func IsRetryable(err error) bool {
	var cfgErr ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	var parseErr ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	var transportErr TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var deliveryErr DeliveryError
	if errors.As(err, &deliveryErr) {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrServiceUnavailable)
}
