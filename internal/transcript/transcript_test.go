package transcript

import (
	"testing"
	"time"

	"github.com/sjawhar/interview-room/internal/conversation"
)

func TestParsePairsQuestionsWithAnswers(t *testing.T) {
	raw := `Interviewer: Tell me about yourself.
You: I have 5 years of experience
  mostly in Go.

AI: Why this role?
Candidate: I like distributed systems.
Bot: Any questions for us?`

	got := Parse(raw)
	want := []QA{
		{Question: "Tell me about yourself.", Answer: "I have 5 years of experience mostly in Go."},
		{Question: "Why this role?", Answer: "I like distributed systems."},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d pairs, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestParseSkipsUnansweredAndOrphanLines(t *testing.T) {
	raw := "stray line before anything\nInterviewer: First?\nInterviewer: Second?\nUser: Answer two\nUser: Replaced answer"
	got := Parse(raw)
	if len(got) != 1 {
		t.Fatalf("expected one pair, got %+v", got)
	}
	if got[0].Question != "Second?" || got[0].Answer != "Replaced answer" {
		t.Fatalf("unexpected pair %+v", got[0])
	}
}

func TestParseEmpty(t *testing.T) {
	if got := Parse(""); len(got) != 0 {
		t.Fatalf("expected no pairs, got %+v", got)
	}
}

func TestFormatRoundTripsThroughParse(t *testing.T) {
	log := conversation.NewLog()
	log.Append(conversation.Assistant, "Tell me about yourself")
	log.Append(conversation.User, "I build\nbackends")
	log.Append(conversation.Assistant, "Thanks")

	raw := Format(log.Turns())
	want := "Interviewer: Tell me about yourself\nYou: I build backends\nInterviewer: Thanks\n"
	if raw != want {
		t.Fatalf("expected %q, got %q", want, raw)
	}

	pairs := Parse(raw)
	if len(pairs) != 1 || pairs[0].Answer != "I build backends" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}

func TestFormatMarkdown(t *testing.T) {
	turns := []conversation.Turn{{
		Speaker: conversation.Assistant,
		Text:    "Hello world.",
		At:      time.Date(2026, 2, 26, 10, 32, 15, 0, time.UTC),
	}}
	got := FormatMarkdown(turns)
	want := "**[10:32:15] Interviewer:** Hello world.\n\n"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
