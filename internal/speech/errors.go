package speech

import "errors"

// ErrCapabilityUnavailable is returned when the platform has no recognizer.
var ErrCapabilityUnavailable = errors.New("speech capability unavailable")

// ErrNoSpeechDetected ends a capture that heard nothing.
var ErrNoSpeechDetected = errors.New("no speech detected")

// ErrSpeechCancelled completes a playback that was cut short.
var ErrSpeechCancelled = errors.New("speech playback cancelled")
