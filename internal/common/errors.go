package common

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError.
const (
	CodeConfig             = "CONFIG_ERROR"
	CodeRecordNotFound     = "RECORD_NOT_FOUND"
	CodeAttachmentFetch    = "ATTACHMENT_FETCH"
	CodePageBoundary       = "PAGE_BOUNDARY"
	CodeProvider           = "PROVIDER_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeReconcileAmbiguous = "RECONCILE_AMBIGUOUS"
	CodeScoringInput       = "SCORING_INPUT_MISSING"
	CodeReferenceMissing   = "REFERENCE_MISSING"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")

	ErrConfiguration           = errors.New("configuration error")
	ErrRecordNotFound          = fmt.Errorf("record not found: %w", ErrNotFound)
	ErrAttachmentFetch         = errors.New("attachment fetch failed")
	ErrPageBoundary            = errors.New("invalid page range")
	ErrProvider                = errors.New("provider error")
	ErrRateLimited             = errors.New("rate limited")
	ErrReconciliationAmbiguous = errors.New("reconciliation ambiguous")
	ErrScoringInputMissing     = errors.New("scoring input missing")
	ErrReferenceMissing        = errors.New("reference value absent")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError builds a fatal configuration error.
func ConfigError(message string) error {
	return NewAppError(CodeConfig, message, ErrConfiguration)
}

// AttachmentFetchError is a per-file failure; the file is skipped, the case continues.
type AttachmentFetchError struct {
	ContentKey string
	Reason     string
	Cause      error
}

func (e *AttachmentFetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch attachment %q: %s: %v", e.ContentKey, e.Reason, e.Cause)
	}
	return fmt.Sprintf("fetch attachment %q: %s", e.ContentKey, e.Reason)
}

func (e *AttachmentFetchError) Is(target error) bool { return target == ErrAttachmentFetch }
func (e *AttachmentFetchError) Unwrap() error        { return e.Cause }

// PageBoundaryError is the provider's end-of-document signal.
type PageBoundaryError struct {
	Page int
}

func (e *PageBoundaryError) Error() string {
	return fmt.Sprintf("invalid page range: page %d", e.Page)
}

func (e *PageBoundaryError) Is(target error) bool { return target == ErrPageBoundary }

// ProviderError covers timeouts, quota exhaustion and unexpected provider responses.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
func (e *ProviderError) Unwrap() error        { return e.Cause }

// RateLimitError carries the provider-suggested wait, zero when none was given.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited: retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsPageBoundary reports whether err is the end-of-document signal.
func IsPageBoundary(err error) bool {
	return errors.Is(err, ErrPageBoundary)
}

// RetryAfterOf returns the suggested wait of a rate-limit error, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, rl.RetryAfter > 0
	}
	return 0, false
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

// ToStatus maps an application error onto a gRPC status error. Status
// errors pass through unchanged.
func ToStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return InvalidArgumentError(err.Error())
	case errors.Is(err, ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return InternalError(err.Error())
	}
}
