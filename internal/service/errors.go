package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrTokenNotFound        = errors.New("verification token not found")
	ErrTokenExpired         = errors.New("verification token expired")
	ErrTokenAlreadyConsumed = errors.New("verification token already consumed")
	ErrRateLimited          = errors.New("rate limited")
	ErrInvalidUser          = errors.New("invalid user id")
	ErrUserNotFound         = errors.New("user record not found")
)

// storageError marca fallas de infraestructura sin perder el error original.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// RateLimitError indica cuándo el usuario puede volver a pedir un link.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
