package model

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialMissing is returned when an outbound call needs the API key
	// and neither credential tier holds one.
	ErrCredentialMissing = errors.New("api key not configured")

	// ErrNotConfigured is returned when the endpoint settings cannot form a
	// usable connection target.
	ErrNotConfigured = errors.New("endpoint not configured")

	// ErrCancelled marks a refresh that was cancelled by its caller or
	// superseded by a forced refresh. It is never surfaced to users.
	ErrCancelled = errors.New("refresh cancelled")

	// ErrUnknownSetting is returned when a caller names a setting key that
	// does not exist.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrInvalidSetting is returned when a value cannot be converted to the
	// setting's kind.
	ErrInvalidSetting = errors.New("invalid setting value")
)

// FeatureNotSupportedError is the pre-flight rejection of a feature that the
// current endpoint is not expected to serve.
type FeatureNotSupportedError struct {
	Feature Feature
	Reason  string
}

func (e *FeatureNotSupportedError) Error() string {
	return fmt.Sprintf("%s not supported: %s", e.Feature.Label(), e.Reason)
}

// FetchFailedError wraps a failed model listing.
type FetchFailedError struct {
	Reason string
	Err    error
}

func (e *FetchFailedError) Error() string {
	return "fetch models: " + e.Reason
}

func (e *FetchFailedError) Unwrap() error {
	return e.Err
}

// NewFetchFailed builds a FetchFailedError whose reason is err's message.
func NewFetchFailed(err error) *FetchFailedError {
	return &FetchFailedError{Reason: err.Error(), Err: err}
}
