package session

import (
	"context"

	"github.com/sjawhar/interview-room/internal/channel"
	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/speech"
)

type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnding     State = "ending"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

type NoticeKind string

const (
	NoticeError NoticeKind = "error"
	NoticeInfo  NoticeKind = "info"
)

// Recovery names an action the view can offer next to a notice.
type Recovery string

const (
	RecoveryRetry     Recovery = "retry"
	RecoveryDashboard Recovery = "dashboard"
	RecoveryDismiss   Recovery = "dismiss"
)

type Notice struct {
	Kind     NoticeKind
	Message  string
	Recovery []Recovery
}

// Dismissible reports whether the view may simply hide the notice.
func (n Notice) Dismissible() bool {
	for _, r := range n.Recovery {
		if r == RecoveryDismiss {
			return true
		}
	}
	return false
}

// Snapshot is a consistent copy of everything the view renders.
type Snapshot struct {
	InterviewID int64
	State       State
	Turns       []conversation.Turn
	Input       string
	Speech      speech.State
	Notice      *Notice
}

type InterviewService interface {
	MarkStarted(ctx context.Context, interviewID int64) error
	MarkEnded(ctx context.Context, interviewID int64) error
}

// Channel is the live transport. *channel.Channel satisfies it.
type Channel interface {
	Connect(ctx context.Context, sessionID int64) error
	Send(msg any)
	OnMessage(h channel.Handler) channel.HandlerID
	OffMessage(id channel.HandlerID)
	OnDrop(fn func(error))
	Disconnect()
}

// Speech is the speech bridge. *speech.Bridge satisfies it.
type Speech interface {
	CanCapture() bool
	CanSpeak() bool
	StartCapture(ctx context.Context) (*speech.Capture, error)
	StopCapture()
	Speak(text string) <-chan error
	CancelSpeaking()
	State() speech.State
	OnStateChange(fn func(speech.State))
	Close()
}
