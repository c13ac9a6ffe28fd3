package speech

import "context"

// Transcript is one recognizer update. Interim updates are replaced by the
// next update; final ones are kept.
type Transcript struct {
	Text  string
	Final bool
}

// Capturer turns live speech into transcript updates. Capture blocks until the
// utterance ends or ctx is cancelled and must not send after it returns.
type Capturer interface {
	Supported() bool
	Capture(ctx context.Context, updates chan<- Transcript) error
}

// Synthesizer plays text as audio. Speak blocks until playback finishes or
// ctx is cancelled.
type Synthesizer interface {
	Supported() bool
	Speak(ctx context.Context, text string) error
}

type noopCapturer struct{}

func (noopCapturer) Supported() bool { return false }

func (noopCapturer) Capture(context.Context, chan<- Transcript) error {
	return ErrCapabilityUnavailable
}

type noopSynthesizer struct{}

func (noopSynthesizer) Supported() bool { return false }

func (noopSynthesizer) Speak(context.Context, string) error { return nil }
