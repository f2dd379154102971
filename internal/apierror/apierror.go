package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrClientNotFound ErrorCode = "CLIENT_NOT_FOUND"
	ErrUnknownVendor  ErrorCode = "UNKNOWN_VENDOR"
	ErrVendorAuth     ErrorCode = "VENDOR_AUTH_FAILURE"
	ErrVendorFetch    ErrorCode = "VENDOR_FETCH_FAILURE"
	ErrValidation     ErrorCode = "VALIDATION_FAILURE"
	ErrErpAuth        ErrorCode = "ERP_AUTH_FAILURE"
	ErrErpWrite       ErrorCode = "ERP_WRITE_FAILURE"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Retryable reports whether an error is worth handing to the retry scheduler.
// Validation failures indicate a mapping bug or a corrupt vendor payload and
// must be surfaced to an operator instead of being retried blindly.
func Retryable(err error) bool {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case ErrVendorAuth, ErrVendorFetch, ErrErpAuth, ErrErpWrite:
		return true
	default:
		return false
	}
}

// Code extracts the taxonomy code from an error, ErrInternalServer when the
// error does not carry one.
func Code(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrClientNotFound, ErrUnknownVendor:
			return http.StatusNotFound
		case ErrValidation, ErrBadRequest:
			return http.StatusBadRequest
		case ErrVendorAuth, ErrErpAuth:
			return http.StatusBadGateway
		case ErrVendorFetch, ErrErpWrite:
			return http.StatusBadGateway
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
