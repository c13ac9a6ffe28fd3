package channel

import (
	"errors"
	"fmt"
)

// ErrNotConnected is logged when a send is attempted without an open connection.
var ErrNotConnected = errors.New("channel not connected")

// ErrConnection marks every failure to establish or keep the connection.
var ErrConnection = errors.New("channel connection failed")

// ConnectionError describes a failed dial, handshake or unexpected drop.
type ConnectionError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("channel %s %s", e.Op, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{ErrConnection}
	}
	return []error{ErrConnection, e.Err}
}
