// Package transcript converts between the conversation log and the flat
// "Speaker: text" transcript stored by the interview service.
package transcript

import (
	"fmt"
	"strings"

	"github.com/sjawhar/interview-room/internal/conversation"
)

const (
	InterviewerLabel = "Interviewer"
	CandidateLabel   = "You"
)

var (
	questionPrefixes = []string{"Interviewer:", "AI:", "Bot:"}
	answerPrefixes   = []string{"You:", "User:", "Candidate:"}
)

// QA is one answered question.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Parse pairs questions with answers. Lines without a known prefix continue
// the current answer. A pair is kept only when both sides are present, and a
// second answer to the same question replaces the first.
func Parse(raw string) []QA {
	var history []QA
	var question, answer string

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if rest, ok := cutPrefix(line, questionPrefixes); ok {
			if question != "" && answer != "" {
				history = append(history, QA{Question: question, Answer: answer})
			}
			question = rest
			answer = ""
			continue
		}
		if rest, ok := cutPrefix(line, answerPrefixes); ok {
			answer = rest
			continue
		}
		if answer != "" {
			answer += " " + line
		}
	}

	if question != "" && answer != "" {
		history = append(history, QA{Question: question, Answer: answer})
	}
	return history
}

func cutPrefix(line string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// Format renders turns in the stored transcript form, one line per turn.
func Format(turns []conversation.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		text := strings.Join(strings.Fields(turn.Text), " ")
		if text == "" {
			continue
		}
		b.WriteString(label(turn.Speaker))
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatMarkdown renders turns for export, with a timestamp per line.
func FormatMarkdown(turns []conversation.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		ts := turn.At.Format("15:04:05")
		fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", ts, label(turn.Speaker), strings.TrimSpace(turn.Text))
	}
	return b.String()
}

func label(s conversation.Speaker) string {
	if s == conversation.Assistant {
		return InterviewerLabel
	}
	return CandidateLabel
}
