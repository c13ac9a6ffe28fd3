// Package feedback turns a finished interview transcript into written feedback
// for the candidate.
package feedback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/interview-room/internal/llm"
)

const minWords = 20

// NotEnoughConversation is the feedback recorded for interviews too short to
// evaluate.
const NotEnoughConversation = "Not enough conversation to evaluate. Answer a few questions and try again."

// ErrAlreadyClaimed means another request is already producing feedback for
// the same transcript.
var ErrAlreadyClaimed = errors.New("feedback already requested")

type ClaimStore interface {
	ClaimFeedbackRequest(interviewID int64, promptHash string) (bool, error)
}

// Request describes one interview to evaluate.
type Request struct {
	InterviewID int64
	Role        string
	Experience  string
	Difficulty  string
	Transcript  string
}

type Option func(*Evaluator)

func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithBackoff(backoff ...time.Duration) Option {
	return func(e *Evaluator) {
		if len(backoff) > 0 {
			e.backoff = backoff
		}
	}
}

type Evaluator struct {
	client  llm.Client
	store   ClaimStore
	logger  *slog.Logger
	backoff []time.Duration
	sleep   func(time.Duration)
}

// New returns an evaluator. Without a client it produces a short summary of the
// answers instead of calling a model.
func New(client llm.Client, store ClaimStore, opts ...Option) *Evaluator {
	e := &Evaluator{
		client:  client,
		store:   store,
		logger:  slog.Default(),
		backoff: []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second},
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(ctx context.Context, req Request) (string, error) {
	if len(strings.Fields(req.Transcript)) < minWords {
		return NotEnoughConversation, nil
	}

	hash := sha256.Sum256([]byte(req.Transcript))
	promptHash := hex.EncodeToString(hash[:])

	if e.store != nil {
		claimed, err := e.store.ClaimFeedbackRequest(req.InterviewID, promptHash)
		if err != nil {
			return "", fmt.Errorf("claim feedback request: %w", err)
		}
		if !claimed {
			return "", ErrAlreadyClaimed
		}
	}

	if e.client == nil {
		return scripted(req), nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(req)},
		{Role: llm.RoleUser, Content: SampleTranscript(req.Transcript, 1500, 500, 1500)},
	}

	var lastErr error
	for attempt := range e.backoff {
		result, err := e.client.Complete(ctx, messages)
		if err == nil {
			return strings.TrimSpace(result), nil
		}
		lastErr = err
		e.logger.Warn("feedback: completion failed", "interview_id", req.InterviewID, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			break
		}
		if attempt < len(e.backoff)-1 {
			e.sleep(e.backoff[attempt])
		}
	}
	return "", fmt.Errorf("feedback failed after retries: %w", lastErr)
}

func systemPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are reviewing a mock interview for the role %q.", req.Role)
	if req.Experience != "" {
		fmt.Fprintf(&b, " The candidate reports %s of experience.", req.Experience)
	}
	if req.Difficulty != "" {
		fmt.Fprintf(&b, " The interview difficulty was %s.", req.Difficulty)
	}
	b.WriteString(` Write feedback in markdown with the sections "Strengths", "Areas to improve" and "Overall", ` +
		`citing specific answers. Address the candidate directly.`)
	return b.String()
}

func scripted(req Request) string {
	var answers int
	for _, line := range strings.Split(req.Transcript, "\n") {
		if strings.HasPrefix(line, "You:") {
			answers++
		}
	}
	return fmt.Sprintf("## Overall\n\nYou answered %d questions for the %s interview. "+
		"Configure an interviewer model to receive detailed feedback.", answers, req.Role)
}

// SampleTranscript keeps the beginning, middle and end of long transcripts.
func SampleTranscript(transcript string, firstN, midN, lastN int) string {
	words := strings.Fields(transcript)
	total := len(words)

	if total <= firstN+midN+lastN {
		return transcript
	}

	first := strings.Join(words[:firstN], " ")
	midStart := (total - midN) / 2
	mid := strings.Join(words[midStart:midStart+midN], " ")
	last := strings.Join(words[total-lastN:], " ")

	return first + "\n\n[...]\n\n" + mid + "\n\n[...]\n\n" + last
}
