package billing

import "errors"

const (
	CodeEmptyServices         = "EmptyServices"
	CodeCollectedExceedsFinal = "CollectedExceedsFinal"
	CodeNegativeServiceAmount = "NegativeServiceAmount"
	CodeAmountOutOfRange      = "AmountOutOfRange"
)

// ValidationError reports bill input that cannot be accepted. Callers map the
// Code to a user-facing message.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return "billing validation failed: " + e.Code
}

// Is matches any ValidationError carrying the same code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	ErrEmptyServices         = &ValidationError{Code: CodeEmptyServices}
	ErrCollectedExceedsFinal = &ValidationError{Code: CodeCollectedExceedsFinal}
	ErrNegativeServiceAmount = &ValidationError{Code: CodeNegativeServiceAmount}
	ErrAmountOutOfRange      = &ValidationError{Code: CodeAmountOutOfRange}
)

// AsValidation returns the ValidationError wrapped in err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
