package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError by how callers are expected to react to it.
type Kind string

const (
	// KindConfiguration marks defects in static mapping or runtime configuration. These are fatal and never retried.
	KindConfiguration Kind = "configuration"
	// KindRequest marks invalid input supplied by a caller.
	KindRequest Kind = "request"
	// KindStore marks failures of the physical cache store. Callers degrade them to cache misses.
	KindStore Kind = "store"
	// KindInternal is the fallback classification.
	KindInternal Kind = "internal"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Kind       Kind   `json:"-"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return false
	}
	var other *AppError
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return other.Code == e.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessagef returns a copy of the AppError with a formatted message.
func (e *AppError) WithMessagef(format string, args ...any) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = fmt.Sprintf(format, args...)
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnmappedType = &AppError{
		Code:       "mapping.unmapped_type",
		Message:    "Type is not mapped",
		Kind:       KindConfiguration,
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidMetadata = &AppError{
		Code:       "mapping.invalid_metadata",
		Message:    "Invalid mapping metadata",
		Kind:       KindConfiguration,
		StatusCode: http.StatusInternalServerError,
	}

	ErrNotCacheable = &AppError{
		Code:       "cache.not_cacheable",
		Message:    "Type is not configured for second-level caching",
		Kind:       KindConfiguration,
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidIdentity = &AppError{
		Code:       "cache.invalid_identity",
		Message:    "Identity value is required",
		Kind:       KindRequest,
		StatusCode: http.StatusBadRequest,
	}

	ErrRegionNotFound = &AppError{
		Code:       "cache.region_not_found",
		Message:    "Cache region not found",
		Kind:       KindRequest,
		StatusCode: http.StatusNotFound,
	}

	ErrStoreUnavailable = &AppError{
		Code:       "cache.store_unavailable",
		Message:    "Cache store unavailable",
		Kind:       KindStore,
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Resource already exists",
		Kind:       KindRequest,
		StatusCode: http.StatusConflict,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		Kind:       KindRequest,
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		Kind:       KindRequest,
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		Kind:       KindInternal,
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Kind:       KindInternal,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Kind:       KindInternal,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		Kind:       KindRequest,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// KindOf returns the classification of err, or KindInternal when err is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

// IsConfiguration reports whether err is a fatal configuration defect.
func IsConfiguration(err error) bool {
	return err != nil && KindOf(err) == KindConfiguration
}
