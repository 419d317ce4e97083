package tcp

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHandler  = errors.New("handler must not be nil")
	ErrBind            = errors.New("failed to bind listener")
	ErrServerClosed    = errors.New("server closed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// BindError is returned by Start when the listen address cannot be bound.
// It is not retried: the operator has to free the port and start again.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s on %s: %v", ErrBind, e.Addr, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBind, e.Err}
}
