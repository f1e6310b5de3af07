package sender

import "fmt"

// TransportError wraps a provider failure with a stable code the rest of
// the pipeline can log and record without depending on SDK error types.
type TransportError struct {
	Code      string
	Recipient string
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s for %s: %v", e.Code, e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
