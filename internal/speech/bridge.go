// Package speech bridges speech capture and playback backends behind one
// interface that degrades to text-only when a capability is missing.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultNoSpeechTimeout = 8 * time.Second

// State reports what the bridge is doing. Listening and Speaking are never both
// true: starting a capture cancels playback and speaking stops the capture.
type State struct {
	Listening bool
	Speaking  bool
}

type Option func(*Bridge)

func WithNoSpeechTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.noSpeechTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bridge owns at most one capture and one playback at a time.
type Bridge struct {
	capturer        Capturer
	synth           Synthesizer
	noSpeechTimeout time.Duration
	logger          *slog.Logger

	// switchMu serializes StartCapture and Speak so one always finishes
	// stopping the other before installing itself.
	switchMu sync.Mutex

	mu       sync.Mutex
	capture  *Capture
	playback *playback
	onChange func(State)
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New selects the backends once. Nil or unsupported backends are replaced with
// no-op implementations.
func New(capturer Capturer, synth Synthesizer, opts ...Option) *Bridge {
	if capturer == nil || !capturer.Supported() {
		capturer = noopCapturer{}
	}
	if synth == nil || !synth.Supported() {
		synth = noopSynthesizer{}
	}

	b := &Bridge{
		capturer:        capturer,
		synth:           synth,
		noSpeechTimeout: defaultNoSpeechTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) CanCapture() bool { return b.capturer.Supported() }

func (b *Bridge) CanSpeak() bool { return b.synth.Supported() }

// OnStateChange registers the observer notified after every flag change.
func (b *Bridge) OnStateChange(fn func(State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Bridge) stateLocked() State {
	return State{Listening: b.capture != nil, Speaking: b.playback != nil}
}

func (b *Bridge) notify() {
	b.mu.Lock()
	fn := b.onChange
	state := b.stateLocked()
	b.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// StartCapture cancels playback and any previous capture, then starts a fresh
// one. It fails with ErrCapabilityUnavailable when no recognizer exists.
func (b *Bridge) StartCapture(ctx context.Context) (*Capture, error) {
	if !b.capturer.Supported() {
		return nil, ErrCapabilityUnavailable
	}

	b.switchMu.Lock()
	defer b.switchMu.Unlock()

	b.CancelSpeaking()
	b.StopCapture()

	captureCtx, cancel := context.WithCancel(ctx)
	c := &Capture{
		partials: make(chan string, 16),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	b.mu.Lock()
	b.capture = c
	b.mu.Unlock()
	b.notify()

	go b.runCapture(captureCtx, c)
	return c, nil
}

// StopCapture ends the active capture, if any, and waits for it to finish.
func (b *Bridge) StopCapture() {
	b.mu.Lock()
	c := b.capture
	b.capture = nil
	b.mu.Unlock()

	if c == nil {
		return
	}
	c.cancel()
	<-c.done
	b.notify()
}

func (b *Bridge) runCapture(ctx context.Context, c *Capture) {
	updates := make(chan Transcript)
	errc := make(chan error, 1)
	go func() {
		errc <- b.capturer.Capture(ctx, updates)
	}()

	var timedOut bool
	var mu sync.Mutex
	detector := NewSilenceDetector(b.noSpeechTimeout)
	detector.OnSilence(func() {
		mu.Lock()
		timedOut = true
		mu.Unlock()
		c.cancel()
	})
	detector.Arm()
	defer detector.Heard()

	var finals []string
	var heard bool
	var captureErr error

loop:
	for {
		select {
		case u := <-updates:
			text := strings.TrimSpace(u.Text)
			if text == "" {
				continue
			}
			heard = true
			detector.Heard()

			full := text
			if u.Final {
				finals = append(finals, text)
				full = strings.Join(finals, " ")
			} else if len(finals) > 0 {
				full = strings.Join(finals, " ") + " " + text
			}
			c.setLast(full)

			select {
			case c.partials <- full:
			case <-ctx.Done():
			}
		case captureErr = <-errc:
			break loop
		}
	}

	mu.Lock()
	silent := timedOut
	mu.Unlock()

	switch {
	case silent && !heard:
		captureErr = ErrNoSpeechDetected
	case errors.Is(captureErr, context.Canceled), errors.Is(captureErr, context.DeadlineExceeded):
		captureErr = nil
	case captureErr == nil && !heard:
		captureErr = ErrNoSpeechDetected
	}
	if captureErr != nil && !errors.Is(captureErr, ErrNoSpeechDetected) {
		b.logger.Warn("speech capture failed", "error", captureErr)
	}

	c.finish(captureErr)

	b.mu.Lock()
	owned := b.capture == c
	if owned {
		b.capture = nil
	}
	b.mu.Unlock()
	if owned {
		b.notify()
	}
}

// Speak stops any capture, cancels the current utterance and plays text. The
// transcript heard so far stays on the stopped Capture. The returned channel
// receives exactly one value: nil, ErrSpeechCancelled or the backend error.
// Without a synthesizer it completes immediately with nil.
func (b *Bridge) Speak(text string) <-chan error {
	result := make(chan error, 1)
	if !b.synth.Supported() || strings.TrimSpace(text) == "" {
		result <- nil
		return result
	}

	b.switchMu.Lock()
	defer b.switchMu.Unlock()

	b.StopCapture()
	b.CancelSpeaking()

	ctx, cancel := context.WithCancel(context.Background())
	p := &playback{cancel: cancel, done: make(chan struct{})}

	b.mu.Lock()
	b.playback = p
	b.mu.Unlock()
	b.notify()

	go func() {
		err := b.synth.Speak(ctx, text)
		if ctx.Err() != nil {
			err = ErrSpeechCancelled
		} else if err != nil {
			b.logger.Warn("speech playback failed", "error", err)
		}
		cancel()

		b.mu.Lock()
		owned := b.playback == p
		if owned {
			b.playback = nil
		}
		b.mu.Unlock()

		close(p.done)
		if owned {
			b.notify()
		}
		result <- err
	}()

	return result
}

// CancelSpeaking stops playback and waits until the backend has let go.
func (b *Bridge) CancelSpeaking() {
	b.mu.Lock()
	p := b.playback
	b.playback = nil
	b.mu.Unlock()

	if p == nil {
		return
	}
	p.cancel()
	<-p.done
	b.notify()
}

// Close stops capture and playback.
func (b *Bridge) Close() {
	b.StopCapture()
	b.CancelSpeaking()
}

// Capture is one listening session.
type Capture struct {
	partials chan string
	done     chan struct{}
	cancel   context.CancelFunc

	mu   sync.Mutex
	last string
	err  error
}

// Partials yields increasingly complete transcripts and closes when capture ends.
func (c *Capture) Partials() <-chan string { return c.partials }

func (c *Capture) Done() <-chan struct{} { return c.done }

// Wait blocks until capture ends and returns nil, ErrNoSpeechDetected or the
// backend error.
func (c *Capture) Wait() error {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Final returns the most complete transcript seen so far.
func (c *Capture) Final() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Capture) setLast(text string) {
	c.mu.Lock()
	c.last = text
	c.mu.Unlock()
}

func (c *Capture) finish(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.partials)
	close(c.done)
}
