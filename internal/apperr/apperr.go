// Package apperr is the error taxonomy shared by the checkout, payment and cart services.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindGateway       Kind = "gateway"
	KindIntegrity     Kind = "integrity"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Code identifies the concrete failure reported to callers.
type Code string

const (
	CodeInvalidRequest     Code = "InvalidRequest"
	CodeInvalidAddress     Code = "InvalidAddress"
	CodeEmptyCart          Code = "EmptyCart"
	CodePartialAdjustment  Code = "PartialAdjustment"
	CodeInsufficientStock  Code = "InsufficientStock"
	CodeInvalidCoupon      Code = "InvalidCoupon"
	CodeCouponConflict     Code = "CouponConflict"
	CodeExceedsStock       Code = "ExceedsStock"
	CodeGatewayUnavailable Code = "GatewayUnavailable"
	CodeUserCancelled      Code = "UserCancelled"
	CodeForbidden          Code = "Forbidden"
	CodeNotFound           Code = "NotFound"
	CodeOrphanedPayment    Code = "OrphanedPayment"
	CodeIntegrityViolation Code = "IntegrityViolation"
	CodeInternalError      Code = "InternalError"
)

type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Details any
	Err     error
}

func New(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(err error, kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails returns a copy of e carrying user-facing details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func Validation(code Code, msg string) *Error { return New(KindValidation, code, msg) }
func Conflict(code Code, msg string) *Error   { return New(KindConflict, code, msg) }
func NotFound(msg string) *Error              { return New(KindNotFound, CodeNotFound, msg) }
func Forbidden(msg string) *Error             { return New(KindAuthorization, CodeForbidden, msg) }

func Internal(err error) *Error {
	return Wrap(err, KindInternal, CodeInternalError, "internal error")
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternalError
}

// HTTPStatus maps a kind to the response status used by the HTTP API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the message and details of kind may be shown to clients.
// Integrity and internal failures are surfaced generically.
func Public(kind Kind) bool {
	return kind != KindIntegrity && kind != KindInternal
}
