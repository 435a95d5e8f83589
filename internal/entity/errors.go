package entity

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Store errors
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")

	// Link errors
	ErrShortCodeTaken = fmt.Errorf("short code already taken: %w", ErrConflict)
	ErrDuplicateURL   = fmt.Errorf("url already shortened by this user: %w", ErrConflict)

	// User errors
	ErrEmailTaken = fmt.Errorf("email already registered: %w", ErrConflict)

	// Cache errors
	ErrCacheMiss = errors.New("cache miss")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindGone
	KindValidation
	KindServiceUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindGone:
		return "gone"
	case KindValidation:
		return "validation_error"
	case KindServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal"
	}
}

// Status is the HTTP status code suggested for the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindGone:
		return http.StatusGone
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a business error returned by services.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Status() int {
	return e.Kind.Status()
}

// KindOf returns KindInternal for errors that are not an AppError.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func NewNotFound(msg string) *AppError {
	return &AppError{Kind: KindNotFound, Message: msg}
}

func NewConflict(msg string) *AppError {
	return &AppError{Kind: KindConflict, Message: msg}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: msg}
}

func NewForbidden(msg string) *AppError {
	return &AppError{Kind: KindForbidden, Message: msg}
}

func NewGone(msg string) *AppError {
	return &AppError{Kind: KindGone, Message: msg}
}

func NewValidation(msg string) *AppError {
	return &AppError{Kind: KindValidation, Message: msg}
}

func NewServiceUnavailable(msg string, err error) *AppError {
	return &AppError{Kind: KindServiceUnavailable, Message: msg, Err: err}
}

func NewInternal(msg string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: msg, Err: err}
}
