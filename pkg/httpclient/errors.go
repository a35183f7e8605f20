package httpclient

import "fmt"

// TransportError marks a request that never produced an HTTP response:
// connection refused, DNS failure, I/O timeout, or context cancellation.
// Callers use errors.As to distinguish it from protocol-level failures.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
