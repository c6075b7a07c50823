package mdlerrors

import "fmt"

// ErrorCodeError is the single-cause error shape (spec §7.1): every scalar
// verification failure is one of these. Message is formatted
// "{human}: {cause?} - {code} - {label}" for bit-compatibility with the
// reference test suite (spec §7, scenario S3).
type ErrorCodeError struct {
	Code    Code
	Label   string
	Message string
	// Cause, when non-nil, is the underlying error that produced this
	// failure (a schema IssueList, a crypto error, a decode error).
	Cause error
}

// New builds an ErrorCodeError for code, optionally wrapping cause.
func New(code Code, cause error) *ErrorCodeError {
	e := &ErrorCodeError{Code: code, Label: code.Label(), Cause: cause}
	if cause != nil {
		e.Message = fmt.Sprintf("%s: %s - %d - %s", code.HumanMessage(), cause.Error(), int(code), code.Label())
	} else {
		e.Message = fmt.Sprintf("%s - %d - %s", code.HumanMessage(), int(code), code.Label())
	}
	return e
}

// Error implements the error interface.
func (e *ErrorCodeError) Error() string { return e.Message }

// Unwrap lets errors.Is/errors.As see through to Cause.
func (e *ErrorCodeError) Unwrap() error { return e.Cause }

// Is reports whether target is an *ErrorCodeError with the same Code,
// letting callers write `errors.Is(err, mdlerrors.New(mdlerrors.DocumentExpired, nil))`
// or more idiomatically compare via CodeOf below.
func (e *ErrorCodeError) Is(target error) bool {
	other, ok := target.(*ErrorCodeError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// CodeOf extracts the Code from err if it is (or wraps) an *ErrorCodeError,
// reporting ok=false otherwise.
func CodeOf(err error) (Code, bool) {
	var ece *ErrorCodeError
	if as(err, &ece) {
		return ece.Code, true
	}
	return 0, false
}

// as walks err's single-error Unwrap chain and stops at the first
// *ErrorCodeError, a narrow stand-in for errors.As that this package uses
// instead of importing the stdlib errors package.
func as(err error, target **ErrorCodeError) bool {
	for err != nil {
		if e, ok := err.(*ErrorCodeError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ElementErrors maps NameSpace -> DataElementIdentifier -> Code, the shape
// ErrorsError aggregates (spec §7.2, §4.6.1). It is a plain Go map, so its
// iteration order is not defined and does not follow the IssuerNameSpaces
// wire order or item order.
type ElementErrors map[string]map[string]Code

// Set records that (nameSpace, elementIdentifier) failed with code.
func (e ElementErrors) Set(nameSpace, elementIdentifier string, code Code) {
	if e[nameSpace] == nil {
		e[nameSpace] = make(map[string]Code)
	}
	e[nameSpace][elementIdentifier] = code
}

// Len reports the total number of recorded element errors.
func (e ElementErrors) Len() int {
	n := 0
	for _, m := range e {
		n += len(m)
	}
	return n
}

// ErrorsError is the aggregated error shape (spec §7.2): used only by
// digest verification when per-element issues accumulate across an entire
// document, rather than aborting at the first failure.
type ErrorsError struct {
	Message string
	Errors  ElementErrors
}

// NewErrorsError builds an ErrorsError from an already-populated
// ElementErrors map.
func NewErrorsError(errs ElementErrors) *ErrorsError {
	return &ErrorsError{
		Message: fmt.Sprintf("value digest verification failed for %d data element(s)", errs.Len()),
		Errors:  errs,
	}
}

// Error implements the error interface.
func (e *ErrorsError) Error() string { return e.Message }
