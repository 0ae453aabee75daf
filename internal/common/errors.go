package common

import (
	"errors"
	"net/http"
)

// Canonical error codes shared by the pricing engine and its HTTP surface.
const (
	CodeProductNotFound          = "PRODUCT_NOT_FOUND"
	CodeVariantNotFound          = "VARIANT_NOT_FOUND"
	CodeOutOfStock               = "OUT_OF_STOCK"
	CodeInvalidCoupon            = "INVALID_COUPON"
	CodeCouponExpired            = "COUPON_EXPIRED"
	CodeCouponExhausted          = "COUPON_EXHAUSTED"
	CodeCouponNotEligible        = "COUPON_NOT_ELIGIBLE"
	CodeMinimumNotMet            = "MINIMUM_NOT_MET"
	CodeCouponNotApplicable      = "COUPON_NOT_APPLICABLE"
	CodeInvalidConfiguration     = "INVALID_CONFIGURATION"
	CodePaymentMethodUnavailable = "PAYMENT_METHOD_UNAVAILABLE"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetails attaches structured details and returns the error for chaining.
func (e *AppError) WithDetails(details any) *AppError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// RenderError writes err as the canonical error payload, falling back to a
// generic 500 when the error carries no code.
func RenderError(w http.ResponseWriter, err error) {
	var app *AppError
	if errors.As(err, &app) {
		status := app.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		JSONError(w, status, app.Code, app.Message, app.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
