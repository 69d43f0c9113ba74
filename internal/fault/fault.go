// Package fault classifies errors returned by the marketplace services.
//
// Every error a caller can act on is a *fault.Error carrying a kind, a stable
// machine code and a human message. Instances are created once as package
// level sentinels so they can be compared with errors.Is.
package fault

import "errors"

type Kind int

const (
	Validation Kind = iota + 1
	Authorization
	Conflict
	Arithmetic
	External
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authorization:
		return "authorization"
	case Conflict:
		return "conflict"
	case Arithmetic:
		return "arithmetic"
	case External:
		return "external"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Invalid(code, message string) *Error      { return New(Validation, code, message) }
func Unauthorized(code, message string) *Error { return New(Authorization, code, message) }
func Conflicting(code, message string) *Error  { return New(Conflict, code, message) }
func Overflow(code, message string) *Error     { return New(Arithmetic, code, message) }
func Upstream(code, message string) *Error     { return New(External, code, message) }
func Missing(code, message string) *Error      { return New(NotFound, code, message) }

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// determine the class of an error
func IsValidation(err error) bool    { return KindOf(err) == Validation }
func IsAuthorization(err error) bool { return KindOf(err) == Authorization }
func IsConflict(err error) bool      { return KindOf(err) == Conflict }
func IsArithmetic(err error) bool    { return KindOf(err) == Arithmetic }
func IsExternal(err error) bool      { return KindOf(err) == External }
func IsNotFound(err error) bool      { return KindOf(err) == NotFound }
