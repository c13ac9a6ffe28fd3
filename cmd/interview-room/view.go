package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/session"
	"github.com/sjawhar/interview-room/internal/transcript"
)

var stateLabels = map[session.State]string{
	session.StateStarting:   "Starting interview...",
	session.StateConnecting: "Connecting to interviewer...",
	session.StateActive:     "Connected. Type your answer, or /mic to speak. /help lists commands.",
	session.StateEnding:     "Ending interview...",
	session.StateEnded:      "Interview ended.",
}

// view prints the parts of each snapshot that changed since the last one.
type view struct {
	mu      sync.Mutex
	out     io.Writer
	state   session.State
	shown   int
	notice  string
	partial string
	speak   bool
}

func newView(out io.Writer) *view {
	return &view{out: out, state: session.StateIdle}
}

func (v *view) render(snap session.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if snap.State != v.state {
		v.state = snap.State
		if label, ok := stateLabels[snap.State]; ok {
			fmt.Fprintf(v.out, "-- %s\n", label)
		}
	}

	// A retry starts a fresh controller with an empty log.
	if len(snap.Turns) < v.shown {
		v.shown = 0
	}
	for _, turn := range snap.Turns[v.shown:] {
		v.printTurn(turn)
	}
	v.shown = len(snap.Turns)

	if snap.Speech.Listening && snap.Input != "" && snap.Input != v.partial {
		fmt.Fprintf(v.out, "   ... %s\n", snap.Input)
	}
	if snap.Speech.Listening {
		v.partial = snap.Input
	} else {
		v.partial = ""
	}

	if snap.Speech.Speaking && !v.speak {
		fmt.Fprintln(v.out, "   (interviewer speaking, /quiet to stop)")
	}
	v.speak = snap.Speech.Speaking

	msg := ""
	if snap.Notice != nil {
		msg = snap.Notice.Message
	}
	if msg != v.notice {
		v.notice = msg
		if snap.Notice != nil {
			fmt.Fprintf(v.out, "!! %s%s\n", snap.Notice.Message, recoveryHint(*snap.Notice))
		}
	}
}

func (v *view) printTurn(turn conversation.Turn) {
	label := transcript.CandidateLabel
	if turn.Speaker == conversation.Assistant {
		label = transcript.InterviewerLabel
	}
	fmt.Fprintf(v.out, "%s: %s\n", label, strings.TrimSpace(turn.Text))
}

func recoveryHint(n session.Notice) string {
	if len(n.Recovery) == 0 {
		return ""
	}
	hints := make([]string, 0, len(n.Recovery))
	for _, r := range n.Recovery {
		switch r {
		case session.RecoveryRetry:
			hints = append(hints, "/retry")
		case session.RecoveryDashboard:
			hints = append(hints, "/dashboard")
		case session.RecoveryDismiss:
			hints = append(hints, "/dismiss")
		}
	}
	return " [" + strings.Join(hints, " ") + "]"
}

func printResult(out io.Writer, pairs []transcript.QA, feedback, status string) {
	fmt.Fprintln(out, "\n== Transcript ==")
	if len(pairs) == 0 {
		fmt.Fprintln(out, "No transcript available.")
	}
	for i, qa := range pairs {
		fmt.Fprintf(out, "\nQ%d. %s\nA%d. %s\n", i+1, qa.Question, i+1, qa.Answer)
	}

	fmt.Fprintln(out, "\n== Feedback ==")
	switch {
	case strings.TrimSpace(feedback) != "":
		fmt.Fprintln(out, feedback)
	case status == "failed":
		fmt.Fprintln(out, "Feedback could not be generated.")
	default:
		fmt.Fprintln(out, "Feedback is still being prepared. Check the dashboard later.")
	}
}

const helpText = `Commands:
  <text>      send an answer
  /mic        answer by voice
  /stop-mic   stop listening
  /quiet      stop the interviewer's voice
  /dismiss    hide the current notice
  /retry      start again after a failure
  /end        finish the interview
  /dashboard  leave without ending`
