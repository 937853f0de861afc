// Package errors provides the action-protocol error taxonomy (VSSKind,
// VSSError) used throughout the broker, built on a small AppError base.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest ErrorType = "bad_request"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// VSSKind is one of the action-protocol error kinds the request processor
// translates into a JSON error envelope.
type VSSKind string

const (
	KindMalformedRequest VSSKind = "MalformedRequest"
	KindSchemaError      VSSKind = "SchemaError"
	KindTokenInvalid     VSSKind = "TokenInvalid"
	KindTokenExpired     VSSKind = "TokenExpired"
	KindNoPermission     VSSKind = "NoPermission"
	KindPathNotFound     VSSKind = "PathNotFound"
	KindInvalidAttribute VSSKind = "InvalidAttribute"
	KindUnavailableData  VSSKind = "UnavailableData"
	KindOutOfBounds      VSSKind = "OutOfBounds"
	KindTypeMismatch     VSSKind = "TypeMismatch"
	KindInvalidValue     VSSKind = "InvalidValue"
	KindInvalidTree      VSSKind = "InvalidTree"
	KindInternalError    VSSKind = "InternalError"
)

// VSSError is an AppError carrying the (number, reason) pair the request
// processor's envelope builder projects verbatim, per the action protocol's
// error taxonomy. number is a string to match the newer envelope consumers.
type VSSError struct {
	*AppError
	Kind   VSSKind
	Number string
	Reason string
}

func newVSSError(kind VSSKind, number, reason, message string) *VSSError {
	return &VSSError{
		AppError: &AppError{Type: ErrorTypeBadRequest, Message: message},
		Kind:     kind,
		Number:   number,
		Reason:   reason,
	}
}

func NewMalformedRequestError(message string) *VSSError {
	return newVSSError(KindMalformedRequest, "400", "Bad Request", message)
}

func NewSchemaError(message string) *VSSError {
	return newVSSError(KindSchemaError, "400", "Bad Request", message)
}

// NewTokenInvalidErrorVSS reports a rejected or unparseable bearer token.
func NewTokenInvalidErrorVSS(message string) *VSSError {
	return newVSSError(KindTokenInvalid, "401", "Invalid Token", message)
}

func NewTokenExpiredErrorVSS(message string) *VSSError {
	return newVSSError(KindTokenExpired, "401", "Invalid Token", message)
}

func NewNoPermissionError(message string) *VSSError {
	return newVSSError(KindNoPermission, "403", "Forbidden", message)
}

func NewPathNotFoundError(message string) *VSSError {
	return newVSSError(KindPathNotFound, "404", "Path not found", message)
}

func NewInvalidAttributeError(message string) *VSSError {
	return newVSSError(KindInvalidAttribute, "404", "Path not found", message)
}

func NewUnavailableDataError(message string) *VSSError {
	return newVSSError(KindUnavailableData, "404", "unavailable_data", message)
}

func NewOutOfBoundsError(message string) *VSSError {
	return newVSSError(KindOutOfBounds, "400", "Bad Request", message)
}

func NewTypeMismatchError(message string) *VSSError {
	return newVSSError(KindTypeMismatch, "400", "Bad Request", message)
}

func NewInvalidValueError(message string) *VSSError {
	return newVSSError(KindInvalidValue, "400", "Bad Request", message)
}

func NewInvalidTreeError(message string) *VSSError {
	return newVSSError(KindInvalidTree, "400", "Bad Request", message)
}

// NewVSSInternalError maps unexpected failures onto the legacy "401 Unknown
// error" envelope, preserved for compatibility with existing consumers.
func NewVSSInternalError(message string) *VSSError {
	return newVSSError(KindInternalError, "401", "Unknown error", message)
}

// AsVSSError extracts a *VSSError from err, if any.
func AsVSSError(err error) (*VSSError, bool) {
	var vssErr *VSSError
	if errors.As(err, &vssErr) {
		return vssErr, true
	}
	return nil, false
}
