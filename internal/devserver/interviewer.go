package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/llm"
	"github.com/sjawhar/interview-room/internal/storage"
)

const closingLine = "That's all the questions I have. Thank you for your time. You can end the interview whenever you're ready."

var scriptedQuestions = []string{
	"Tell me about yourself and what draws you to the %s role.",
	"Walk me through a recent project you are proud of. What was your part in it?",
	"Describe a time you disagreed with a teammate. How did you resolve it?",
	"What is the hardest technical problem you have solved, and how did you approach it?",
	"How do you decide what to work on when everything feels urgent?",
	"Where do you want to grow in the next two years?",
	"Do you have any questions for me about the team or the role?",
}

// Interviewer produces the next interviewer turn. Without a model client, or
// when the model fails, it falls back to a fixed question list.
type Interviewer struct {
	client       llm.Client
	maxQuestions int
	logger       *slog.Logger
}

func NewInterviewer(client llm.Client, maxQuestions int, logger *slog.Logger) *Interviewer {
	if maxQuestions <= 0 {
		maxQuestions = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interviewer{client: client, maxQuestions: maxQuestions, logger: logger}
}

// Next returns the next interviewer line. done is true once the question
// budget is spent and the returned line is the closing remark.
func (iv *Interviewer) Next(ctx context.Context, interview storage.Interview, turns []conversation.Turn) (string, bool) {
	asked := 0
	for _, t := range turns {
		if t.Speaker == conversation.Assistant {
			asked++
		}
	}
	if asked >= iv.maxQuestions {
		return closingLine, true
	}

	if iv.client != nil {
		text, err := iv.client.Complete(ctx, iv.prompt(interview, turns, asked))
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), false
		}
		iv.logger.Warn("interviewer: falling back to scripted question", "interview_id", interview.ID, "error", err)
	}
	return scriptedQuestion(interview.Role, asked), false
}

func (iv *Interviewer) prompt(interview storage.Interview, turns []conversation.Turn, asked int) []llm.Message {
	var system strings.Builder
	fmt.Fprintf(&system, "You are interviewing a candidate for the role %q.", interview.Role)
	if interview.Experience != "" {
		fmt.Fprintf(&system, " They have %s of experience.", interview.Experience)
	}
	if interview.Difficulty != "" {
		fmt.Fprintf(&system, " Pitch the questions at %s difficulty.", interview.Difficulty)
	}
	fmt.Fprintf(&system, " Ask exactly one question per reply, %d of %d so far.", asked, iv.maxQuestions)
	system.WriteString(" Briefly acknowledge the previous answer before asking. Keep replies under 60 words and never answer for the candidate.")

	messages := make([]llm.Message, 0, len(turns)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system.String()})
	if len(turns) == 0 || turns[0].Speaker == conversation.Assistant {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "I'm ready to begin the interview."})
	}
	for _, t := range turns {
		role := llm.RoleUser
		if t.Speaker == conversation.Assistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}
	return messages
}

func scriptedQuestion(role string, asked int) string {
	q := scriptedQuestions[asked%len(scriptedQuestions)]
	if strings.Contains(q, "%s") {
		if role == "" {
			role = "this"
		}
		return fmt.Sprintf(q, role)
	}
	return q
}
