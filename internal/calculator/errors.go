package calculator

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the calculator core can report.
type Kind string

const (
	InvalidOperand     Kind = "INVALID_OPERAND"
	DivideByZero       Kind = "DIVIDE_BY_ZERO"
	DomainError        Kind = "DOMAIN_ERROR"
	TooLarge           Kind = "TOO_LARGE"
	InvalidExpression  Kind = "INVALID_EXPRESSION"
	ArithmeticOverflow Kind = "ARITHMETIC_OVERFLOW"
	IndexOutOfRange    Kind = "INDEX_OUT_OF_RANGE"
)

// GenericMessage is shown when a failure has no more specific indicator.
const GenericMessage = "ERROR"

// ErrBusy is returned for any event received while a remote request is
// outstanding.
var ErrBusy = errors.New("calculator is busy")

// Error is the structured error returned by every core operation.
// Message is the short text shown on the display.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("calculator: %s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("calculator: %s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func wrapError(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

// KindOf reports the Kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a calculator error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// DisplayMessage returns the indicator to show for err.
func DisplayMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return GenericMessage
}
