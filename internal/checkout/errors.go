// Package checkout drives a buyer's checkout attempt through its states:
// collect details, pick a payment method, pay over the hosted or manual
// rail, and settle.
package checkout

import "fmt"

type ErrorKind string

const (
	// KindValidation covers buyer input the flow rejects. Message is safe
	// to show the buyer.
	KindValidation ErrorKind = "validation"

	// KindNotFound covers unknown sessions, methods and listings.
	KindNotFound ErrorKind = "not_found"

	// KindNotPurchasable means the referenced listing cannot be bought:
	// unpublished, out of stock, or expired.
	KindNotPurchasable ErrorKind = "not_purchasable"

	// KindConflict means the operation does not apply to the session's
	// current state.
	KindConflict ErrorKind = "conflict"

	// KindGateway covers hosted-rail failures. The order, if one exists,
	// is left retryable.
	KindGateway ErrorKind = "gateway"

	// KindInternal covers persistence and other unexpected failures.
	KindInternal ErrorKind = "internal"
)

// Error is the flow's single error type. Handlers map Kind to a status code
// and surface Message; Field points at the offending input when set.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

func validationErr(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func notFoundErr(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func conflictErr(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func gatewayErr(message string, err error) *Error {
	return &Error{Kind: KindGateway, Message: message, err: err}
}

func internalErr(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, err: err}
}
