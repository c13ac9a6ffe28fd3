package session

import "errors"

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotActive      = errors.New("session not active")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrClosed         = errors.New("session closed")
)
