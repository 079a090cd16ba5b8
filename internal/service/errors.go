package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidClient        = errors.New("invalid client")
	ErrInvalidScope         = errors.New("invalid scope")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrInsufficientScope    = errors.New("insufficient scope")
	ErrNotFound             = errors.New("subscription not found")
	ErrConflict             = errors.New("conflict")
)

// ValidationError describes a rejected resource payload.
type ValidationError struct {
	Message       string
	MissingFields []string
	ValidPlans    []string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Message
}

// ConflictError carries the subscription that blocked the write.
type ConflictError struct {
	Message    string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s (existing %s)", e.Message, e.ExistingID)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ScopeError names the scopes a client is not allowed to request.
type ScopeError struct {
	Invalid []string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("invalid scopes: %v", e.Invalid)
}

func (e *ScopeError) Unwrap() error {
	return ErrInvalidScope
}
