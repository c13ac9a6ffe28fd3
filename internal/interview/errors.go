package interview

import (
	"errors"
	"fmt"
)

// ErrExternalCall marks every failed call to the interview service.
var ErrExternalCall = errors.New("interview service call failed")

// CallError describes a failed request: a transport error or a non-2xx reply.
type CallError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %d - %s", e.Op, e.Status, e.Body)
}

func (e *CallError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{ErrExternalCall}
	}
	return []error{ErrExternalCall, e.Err}
}
