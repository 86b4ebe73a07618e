package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey is returned by a RecordStore when the e-mail already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrFetchAbandoned marks a fetch that exhausted its retries.
	ErrFetchAbandoned = errors.New("fetch abandoned after retries")
	// ErrUnexpectedStatus marks a response whose status is not 200.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// StatusError wraps ErrUnexpectedStatus with the received code.
func StatusError(code int) error {
	return fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
}
