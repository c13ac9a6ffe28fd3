package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// Turn is one utterance in the live conversation.
type Turn struct {
	ID      string    `json:"id"`
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Log is the ordered, append-only record of turns for the session on screen.
// Insertion order is the conversation order.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// NewLog creates an empty conversation log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append records a turn and returns it.
func (l *Log) Append(speaker Speaker, text string) Turn {
	turn := Turn{
		ID:      uuid.NewString(),
		Speaker: speaker,
		Text:    text,
		At:      l.now().UTC(),
	}

	l.mu.Lock()
	l.turns = append(l.turns, turn)
	l.mu.Unlock()
	return turn
}

// Turns returns a copy of the recorded turns. Returns nil if the log is empty.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return nil
	}
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of recorded turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Last returns the most recent turn.
func (l *Log) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// Reset drops every turn. Used when a view is re-entered for a new session.
func (l *Log) Reset() {
	l.mu.Lock()
	l.turns = nil
	l.mu.Unlock()
}
