package dispatch

import "fmt"

// ValidationError rejects a batch before any item is processed. It is the
// only error Dispatch returns for a non-empty, well-formed context; every
// per-item failure is folded into the BatchResult instead.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid batch: %s", e.Reason)
}

// LedgerWriteError marks a failed audit write. It is logged and dropped,
// never folded into an item outcome: by the time the ledger write runs the
// transport has already accepted or rejected the message.
type LedgerWriteError struct {
	MessageID string
	Err       error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger write for %s: %v", e.MessageID, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }
