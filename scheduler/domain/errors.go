package domain

import "fmt"

// InvalidRequest marks a submission that can never be admitted, as opposed to
// one that merely has to wait for devices. Clients should not retry these
// unmodified.
type InvalidRequest struct {
	msg string
}

func NewInvalidRequest(format string, args ...interface{}) *InvalidRequest {
	return &InvalidRequest{msg: fmt.Sprintf(format, args...)}
}

func (e *InvalidRequest) Error() string {
	return e.msg
}

// Unauthorized marks a device admin action from a requester outside the
// configured admin set.
type Unauthorized struct {
	msg string
}

func NewUnauthorized(format string, args ...interface{}) *Unauthorized {
	return &Unauthorized{msg: fmt.Sprintf(format, args...)}
}

func (e *Unauthorized) Error() string {
	return e.msg
}
