package client

import "fmt"

// NetworkError is a transport-level failure: DNS, connect, TLS, timeout,
// cancellation, or an open circuit. No status was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
