package protocol

import "errors"

// Code is a wire-stable error code from the closed taxonomy below.
type Code string

const (
	CodeParseError         Code = "PARSE_ERROR"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeUnknownOperation   Code = "UNKNOWN_OPERATION"
	CodeValidationError    Code = "VALIDATION_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeConflict           Code = "CONFLICT"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeBackpressure       Code = "BACKPRESSURE"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeBucketNotDefined   Code = "BUCKET_NOT_DEFINED"
	CodeQueryNotDefined    Code = "QUERY_NOT_DEFINED"
	CodeRulesNotAvailable  Code = "RULES_NOT_AVAILABLE"
)

// Error is a typed wire error: code, message, and optional structured
// details. It implements the standard error interface so handlers can
// return it directly.
type Error struct {
	Code    Code
	Message string
	Details any
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError builds a typed Error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// AsError unwraps err into a *Error if it is (or wraps) one.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
