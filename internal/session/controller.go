// Package session runs one live interview: it marks the interview started,
// opens the channel, keeps the conversation log and drives speech.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sjawhar/interview-room/internal/channel"
	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/protocol"
	"github.com/sjawhar/interview-room/internal/speech"
)

const (
	msgStartFailed      = "Failed to start interview. Please try again."
	msgConnectFailed    = "Failed to connect to interview server"
	msgConnectionLost   = "Connection to interview server lost"
	msgNoSpeech         = "No speech detected. Please try again."
	msgVoiceUnavailable = "Voice input is not available. Type your answer instead."
	msgVoiceFailed      = "Voice input failed. Please try again."
)

// Option configures a Controller.
type Option func(*Controller)

// WithAutoSendSpeech controls whether a finished transcript is submitted
// without waiting for the user. It defaults to on.
func WithAutoSendSpeech(on bool) Option {
	return func(c *Controller) {
		c.autoSend = on
	}
}

// WithLogger sets the logger. Nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLog records turns into log instead of a fresh one.
func WithLog(log *conversation.Log) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

type Controller struct {
	interviewID int64
	service     InterviewService
	channel     Channel
	speech      Speech
	log         *conversation.Log
	logger      *slog.Logger
	autoSend    bool

	sendMu sync.Mutex

	mu         sync.Mutex
	state      State
	marked     bool
	endPending bool
	input      string
	notice     *Notice
	handlerID  channel.HandlerID
	capture    *speech.Capture
	dialing    bool
	cleaned    bool
	observers  []func(Snapshot)
}

// NewController returns an idle controller for one interview. Nothing is
// contacted until Start.
func NewController(interviewID int64, service InterviewService, ch Channel, sp Speech, opts ...Option) *Controller {
	c := &Controller{
		interviewID: interviewID,
		service:     service,
		channel:     ch,
		speech:      sp,
		log:         conversation.NewLog(),
		logger:      slog.Default(),
		autoSend:    true,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("interview_id", interviewID)
	sp.OnStateChange(func(speech.State) { c.emit() })
	return c
}

// OnChange registers fn to receive a snapshot after every change.
func (c *Controller) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		InterviewID: c.interviewID,
		State:       c.state,
		Input:       c.input,
	}
	if c.notice != nil {
		n := *c.notice
		n.Recovery = append([]Recovery(nil), c.notice.Recovery...)
		snap.Notice = &n
	}
	c.mu.Unlock()

	snap.Turns = c.log.Turns()
	snap.Speech = c.speech.State()
	return snap
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) emit() {
	c.mu.Lock()
	observers := append(([]func(Snapshot))(nil), c.observers...)
	c.mu.Unlock()
	if len(observers) == 0 {
		return
	}

	snap := c.Snapshot()
	for _, fn := range observers {
		fn(snap)
	}
}

// Start marks the interview started and opens the channel. It only runs from
// idle. A failure leaves the controller failed with a notice.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateStarting
	c.mu.Unlock()
	c.emit()

	if err := c.service.MarkStarted(ctx, c.interviewID); err != nil {
		c.logger.Error("mark interview started failed", "error", err)
		if !c.fail(&Notice{Kind: NoticeError, Message: msgStartFailed, Recovery: []Recovery{RecoveryRetry, RecoveryDashboard}}, StateStarting) {
			return ErrClosed
		}
		return fmt.Errorf("start interview: %w", err)
	}

	c.mu.Lock()
	if c.state != StateStarting {
		endPending := c.endPending
		c.endPending = false
		c.mu.Unlock()
		// End ran while the start call was in flight and could not mark the
		// interview ended yet.
		if endPending {
			if err := c.service.MarkEnded(context.WithoutCancel(ctx), c.interviewID); err != nil {
				c.logger.Warn("mark interview ended failed", "error", err)
			}
		}
		return ErrClosed
	}
	c.state = StateConnecting
	c.marked = true
	c.mu.Unlock()
	c.emit()

	// Handlers go in before the dial so nothing sent right after the
	// handshake is missed.
	id := c.channel.OnMessage(c.handleInbound)
	c.channel.OnDrop(c.handleDrop)
	c.mu.Lock()
	c.handlerID = id
	c.dialing = true
	c.mu.Unlock()

	err := c.channel.Connect(ctx, c.interviewID)

	c.mu.Lock()
	c.dialing = false
	if c.cleaned {
		c.mu.Unlock()
		// Torn down while dialing; cleanup left the disconnect to us.
		c.channel.Disconnect()
		return ErrClosed
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("connect interview channel failed", "error", err)
		if !c.fail(&Notice{Kind: NoticeError, Message: msgConnectFailed, Recovery: []Recovery{RecoveryRetry, RecoveryDashboard}}, StateConnecting) {
			return ErrClosed
		}
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateActive
	c.mu.Unlock()

	c.logger.Info("interview session active")
	c.emit()
	return nil
}

// fail moves from one of the given states to failed and runs cleanup. It
// reports false when the controller had already left those states.
func (c *Controller) fail(notice *Notice, from ...State) bool {
	c.mu.Lock()
	if !slices.Contains(from, c.state) {
		c.mu.Unlock()
		return false
	}
	c.state = StateFailed
	c.notice = notice
	c.mu.Unlock()

	c.cleanup()
	c.emit()
	return true
}

func (c *Controller) handleInbound(msg protocol.Inbound) {
	if !msg.IsAssistantTurn() {
		return
	}
	text := msg.Payload()
	if text == "" {
		return
	}

	c.mu.Lock()
	if c.state != StateActive && c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.log.Append(conversation.Assistant, text)
	// Playback stops the microphone. Detach the capture so its partial answer
	// is kept for review instead of being sent.
	var interrupted *speech.Capture
	if c.speech.CanSpeak() {
		interrupted = c.capture
		c.capture = nil
	}
	c.mu.Unlock()
	c.emit()

	c.speech.Speak(text)

	if interrupted != nil {
		if heard := strings.TrimSpace(interrupted.Final()); heard != "" {
			c.mu.Lock()
			if c.state == StateActive {
				c.input = heard
			}
			c.mu.Unlock()
			c.emit()
		}
	}

	if c.State().Terminal() {
		c.speech.CancelSpeaking()
	}
}

func (c *Controller) handleDrop(err error) {
	c.logger.Warn("interview channel dropped", "error", err)
	c.fail(&Notice{Kind: NoticeError, Message: msgConnectionLost, Recovery: []Recovery{RecoveryDashboard}}, StateConnecting, StateActive)
}

// SetInput replaces the pending answer text.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
	c.emit()
}

// Submit sends the pending input.
func (c *Controller) Submit() error {
	c.mu.Lock()
	text := c.input
	c.mu.Unlock()
	return c.Send(text)
}

// Send records text as the user's turn and forwards it to the server. Blank
// text and sends outside the active state are rejected without side effects.
func (c *Controller) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.log.Append(conversation.User, text)
	c.mu.Unlock()

	c.speech.CancelSpeaking()
	c.channel.Send(protocol.NewUserMessage(text, c.interviewID))

	c.mu.Lock()
	c.input = ""
	c.mu.Unlock()
	c.emit()
	return nil
}

// StartCapture begins listening. Partial transcripts replace the input while
// the user speaks.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.capture = nil
	c.mu.Unlock()

	if !c.speech.CanCapture() {
		c.setNotice(&Notice{Kind: NoticeInfo, Message: msgVoiceUnavailable, Recovery: []Recovery{RecoveryDismiss}})
		return speech.ErrCapabilityUnavailable
	}

	capture, err := c.speech.StartCapture(ctx)
	if err != nil {
		msg := msgVoiceFailed
		if errors.Is(err, speech.ErrCapabilityUnavailable) {
			msg = msgVoiceUnavailable
		}
		c.setNotice(&Notice{Kind: NoticeInfo, Message: msg, Recovery: []Recovery{RecoveryDismiss}})
		return err
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		c.speech.StopCapture()
		return ErrNotActive
	}
	c.capture = capture
	c.input = ""
	c.notice = nil
	c.mu.Unlock()
	c.emit()

	go c.followCapture(capture)
	return nil
}

func (c *Controller) followCapture(capture *speech.Capture) {
	for partial := range capture.Partials() {
		c.mu.Lock()
		owned := c.capture == capture && c.state == StateActive
		if owned {
			c.input = partial
		}
		c.mu.Unlock()
		if owned {
			c.emit()
		}
	}

	err := capture.Wait()

	c.mu.Lock()
	owned := c.capture == capture && c.state == StateActive
	if c.capture == capture {
		c.capture = nil
	}
	c.mu.Unlock()
	if !owned {
		return
	}

	switch {
	case errors.Is(err, speech.ErrNoSpeechDetected):
		c.setNotice(&Notice{Kind: NoticeInfo, Message: msgNoSpeech, Recovery: []Recovery{RecoveryDismiss}})
	case err != nil:
		c.setNotice(&Notice{Kind: NoticeInfo, Message: msgVoiceFailed, Recovery: []Recovery{RecoveryDismiss}})
	case c.autoSend:
		if final := strings.TrimSpace(capture.Final()); final != "" {
			if err := c.Send(final); err != nil {
				c.logger.Debug("transcript not sent", "error", err)
			}
		}
	}
}

func (c *Controller) StopCapture() {
	c.speech.StopCapture()
}

func (c *Controller) CancelSpeaking() {
	c.speech.CancelSpeaking()
}

func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) setNotice(n *Notice) {
	c.mu.Lock()
	c.notice = n
	c.mu.Unlock()
	c.emit()
}

// End finishes the interview: speech stops, the service is told the session
// ended and the channel closes. Later calls do nothing.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateEnding, StateEnded, StateFailed:
		c.mu.Unlock()
		return nil
	}
	markEnded := c.marked
	c.marked = false
	c.endPending = c.state == StateStarting
	c.state = StateEnding
	c.mu.Unlock()
	c.emit()

	c.speech.CancelSpeaking()
	c.speech.StopCapture()

	if markEnded {
		if err := c.service.MarkEnded(ctx, c.interviewID); err != nil {
			c.logger.Warn("mark interview ended failed", "error", err)
		}
	}

	c.cleanup()

	c.mu.Lock()
	c.state = StateEnded
	c.mu.Unlock()

	c.logger.Info("interview session ended")
	c.emit()
	return nil
}

// Close tears the session down from any state. It never calls the interview
// service. Callers defer it when entering the session view.
func (c *Controller) Close() {
	c.mu.Lock()
	changed := false
	if !c.state.Terminal() && c.state != StateEnding {
		c.state = StateEnded
		changed = true
	}
	c.mu.Unlock()

	c.cleanup()
	if changed {
		c.emit()
	}
}

// cleanup runs once per controller.
func (c *Controller) cleanup() {
	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return
	}
	c.cleaned = true
	id := c.handlerID
	dialing := c.dialing
	c.capture = nil
	c.mu.Unlock()

	if id != 0 {
		c.channel.OffMessage(id)
	}
	c.channel.OnDrop(nil)
	// A dial in flight disconnects once it returns, in Start.
	if !dialing {
		c.channel.Disconnect()
	}
	c.speech.Close()
}
