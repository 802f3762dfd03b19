package usecase

import (
	"errors"
	"fmt"
)

// エラーの種類。handlerでHTTPステータスに変換する
type ErrorKind string

const (
	KindValidation         ErrorKind = "ValidationError"
	KindNotFound           ErrorKind = "NotFound"
	KindInvalidState       ErrorKind = "InvalidState"
	KindInvalidStatus      ErrorKind = "InvalidStatus"
	KindMismatch           ErrorKind = "Mismatch"
	KindExpired            ErrorKind = "Expired"
	KindUnauthorized       ErrorKind = "Unauthorized"
	KindForbidden          ErrorKind = "Forbidden"
	KindNotCancellable     ErrorKind = "NotCancellable"
	KindConflict           ErrorKind = "Conflict"
	KindRateLimited        ErrorKind = "RateLimited"
	KindPaymentUnavailable ErrorKind = "PaymentUnavailable"
	KindNotImplemented     ErrorKind = "NotImplemented"
	KindInternal           ErrorKind = "Internal"
)

// usecaseが返す失敗はすべてこれ
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, message string) error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

func AsError(err error) (*Error, bool) {
	var ue *Error
	ok := errors.As(err, &ue)
	return ue, ok
}

// Errorでなければ Internal
func KindOf(err error) ErrorKind {
	if ue, ok := AsError(err); ok {
		return ue.Kind
	}
	return KindInternal
}

func internalError() error {
	return NewError(KindInternal, "internal error")
}
