package httpapi

import "fmt"

const (
	CodeValidation   = "validation"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeRoutingError = "routing_error"
	CodeInternal     = "internal"
)

type Error struct {
	Code      string
	Message   string
	Status    int
	Transient bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	default:
		return 500
	}
}

func newError(code, message string, transient bool) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Status:    statusForCode(code),
		Transient: transient,
	}
}

func newValidationError(message string) *Error {
	return newError(CodeValidation, message, false)
}

func newValidationJSONError(err error) *Error {
	return newError(CodeValidation, "invalid json: "+err.Error(), false)
}
