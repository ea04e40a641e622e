package payment

import "errors"

var (
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrVerificationFailed   = errors.New("payment verification failed")
	ErrPaymentCancelled     = errors.New("payment cancelled")
	ErrInvalidAmount        = errors.New("order amount must be positive")
)

// ProcessorError is a non-2xx answer from the processor API.
type ProcessorError struct {
	StatusCode int
	Body       string
}

func (e *ProcessorError) Error() string {
	return "processor responded " + httpStatus(e.StatusCode) + ": " + e.Body
}

// Temporary reports whether retrying later may succeed.
func (e *ProcessorError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
