package imagestudio

import (
	"errors"
	"fmt"
	"time"
)

// User-facing messages written into Session.Error.
const (
	MsgEmptyPrompt         = "Please describe your idea."
	MsgMissingEditImage    = "Please upload an image to edit."
	MsgComposeNeedsTwo     = "The 'merge' function requires two images."
	MsgUnknownError        = "An unknown error occurred."
	MsgUnknownMode         = "Please choose create or edit."
	msgGenerationErrPrefix = "An error occurred: "
)

// ValidationError is returned when a request fails a local check before any
// call to the generation backend. Message is safe to show to the user.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// RateLimitError is returned when a rate limit is hit.
type RateLimitError struct {
	RetryAfter time.Duration
	LimitType  string
	Model      string
	Err        error // Underlying error from the provider
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %s limit, retry after %v",
		e.Model, e.LimitType, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimitError checks if an error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// NoImageError is returned when the model answered without an image.
// Text holds whatever the model said instead, often a refusal.
type NoImageError struct {
	Text string
}

func (e *NoImageError) Error() string {
	if e.Text == "" {
		return ErrNoImageReturned.Error()
	}
	return fmt.Sprintf("%s: %s", ErrNoImageReturned, e.Text)
}

func (e *NoImageError) Is(target error) bool {
	return target == ErrNoImageReturned
}

var (
	// ErrNoImageReturned is matched by NoImageError.
	ErrNoImageReturned = errors.New("model returned no image")

	// ErrStorageNotConfigured is returned when storage operations are attempted
	// without a configured storage backend.
	ErrStorageNotConfigured = errors.New("storage not configured")

	// ErrSubmissionInFlight is logged when Submit is called on a busy session.
	ErrSubmissionInFlight = errors.New("submission already in progress")
)

// UserMessage turns any error reaching the submission workflow into the text
// stored in Session.Error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr.Message != "" {
		return vErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msgGenerationErrPrefix + msg
	}
	return MsgUnknownError
}
