package client

import (
	"errors"
	"fmt"
)

var ErrUnauthorized = errors.New("unauthorized")

// NetworkError reports a failed call to the marketplace API. Status is the
// HTTP status, or 0 when no response was received.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
