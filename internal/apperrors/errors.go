// Package apperrors defines the structured error taxonomy shared by the
// upload, inference and recommendation paths.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure kind independent of its message.
type ErrorCode string

// Client input errors
const (
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeNoFileUploaded  ErrorCode = "NO_FILE_UPLOADED"
	ErrCodeNoFileSelected  ErrorCode = "NO_FILE_SELECTED"
	ErrCodeUploadTooLarge  ErrorCode = "UPLOAD_TOO_LARGE"
	ErrCodeImageDecode     ErrorCode = "IMAGE_DECODE_FAILED"
	ErrCodeUploadStaging   ErrorCode = "UPLOAD_STAGING_FAILED"
	ErrCodeInferenceFailed ErrorCode = "INFERENCE_FAILED"
)

// Recommendation errors
const (
	ErrCodeRecommenderNotConfigured ErrorCode = "RECOMMENDER_NOT_CONFIGURED"
	ErrCodeUpstreamRejected         ErrorCode = "UPSTREAM_REJECTED"
	ErrCodeUpstreamUnavailable      ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamTimeout          ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamBadResponse      ErrorCode = "UPSTREAM_BAD_RESPONSE"
)

// StandardError is the structured error carried through the service.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Err       error     `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Err
}

func NewInvalidInputError(message string) *StandardError {
	return &StandardError{Code: ErrCodeInvalidInput, Message: message}
}

func NewNoFileUploadedError() *StandardError {
	return &StandardError{Code: ErrCodeNoFileUploaded, Message: "No file uploaded"}
}

func NewNoFileSelectedError() *StandardError {
	return &StandardError{Code: ErrCodeNoFileSelected, Message: "No file selected"}
}

func NewUploadTooLargeError(limit int64) *StandardError {
	return &StandardError{
		Code:    ErrCodeUploadTooLarge,
		Message: "Upload too large",
		Details: fmt.Sprintf("limit is %d bytes", limit),
	}
}

// NewImageDecodeError reports an upload that is not a decodable image.
func NewImageDecodeError(err error) *StandardError {
	return &StandardError{
		Code:    ErrCodeImageDecode,
		Message: "Invalid image file",
		Details: errDetails(err),
		Err:     err,
	}
}

func NewUploadStagingError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUploadStaging,
		Message:   "Failed to store upload",
		Details:   errDetails(err),
		Retryable: true,
		Err:       err,
	}
}

func NewInferenceError(err error) *StandardError {
	return &StandardError{
		Code:    ErrCodeInferenceFailed,
		Message: "Prediction failed",
		Details: errDetails(err),
		Err:     err,
	}
}

// NewRecommenderNotConfiguredError is returned when no credential was
// supplied at startup.
func NewRecommenderNotConfiguredError() *StandardError {
	return &StandardError{
		Code:    ErrCodeRecommenderNotConfigured,
		Message: "Gemini API key not configured. Cannot get recommendations.",
	}
}

// NewUpstreamRejectedError covers credential or permission rejections by the
// text service. Retrying will not help until configuration changes.
func NewUpstreamRejectedError(status int, body string) *StandardError {
	return &StandardError{
		Code:    ErrCodeUpstreamRejected,
		Message: "Text service rejected the request",
		Details: fmt.Sprintf("status %d: %s", status, body),
	}
}

func NewUpstreamUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamUnavailable,
		Message:   "Text service unavailable",
		Details:   errDetails(err),
		Retryable: true,
		Err:       err,
	}
}

func NewUpstreamTimeoutError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamTimeout,
		Message:   "Text service timed out",
		Details:   errDetails(err),
		Retryable: true,
		Err:       err,
	}
}

func NewUpstreamBadResponseError(details string) *StandardError {
	return &StandardError{
		Code:    ErrCodeUpstreamBadResponse,
		Message: "Unexpected response from text service",
		Details: details,
	}
}

// CodeOf returns the code of the first StandardError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsRetryable reports whether err is a StandardError marked retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// HTTPStatus maps an error code to the status surfaced to clients.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput,
		ErrCodeNoFileUploaded,
		ErrCodeNoFileSelected,
		ErrCodeUploadTooLarge,
		ErrCodeImageDecode:
		return http.StatusBadRequest
	case ErrCodeRecommenderNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
