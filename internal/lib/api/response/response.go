package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// Machine-checkable error discriminators. Clients branch on these, never
// on the human-readable message.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeEmailTaken          = "EMAIL_TAKEN"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeRecordingNotFound   = "RECORDING_NOT_FOUND"
	CodeInternal            = "INTERNAL"
)

func OK() Response {
	return Response{Status: StatusOK}
}

func Error(msg, code string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
		Code:   code,
	}
}

// ValidationError flattens validator failures into one message naming
// every violated rule, not just the first.
func ValidationError(errs validator.ValidationErrors) Response {
	var msgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return ValidationMessages(msgs)
}

// ValidationMessages builds a validation response from pre-rendered rule
// violations (e.g. the password policy).
func ValidationMessages(msgs []string) Response {
	return Response{
		Status: StatusError,
		Error:  strings.Join(msgs, ", "),
		Code:   CodeValidation,
	}
}
