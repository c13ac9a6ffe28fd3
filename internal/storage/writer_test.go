package storage

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/interview-room/internal/conversation"
)

func TestWriterWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	at := time.Date(2026, 2, 26, 10, 30, 0, 0, time.UTC)

	path, err := w.Write(7, "Backend Engineer", []conversation.Turn{
		{Speaker: conversation.Assistant, Text: "Tell me about yourself.", At: at},
		{Speaker: conversation.User, Text: "I build services.", At: at.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != w.Path(7) {
		t.Fatalf("expected path %q, got %q", w.Path(7), path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	content := string(data)
	if !strings.HasPrefix(content, "# Interview 7: Backend Engineer") {
		t.Errorf("expected heading, got: %s", content)
	}
	if !strings.Contains(content, "**[10:30:00] Interviewer:** Tell me about yourself.") {
		t.Errorf("expected interviewer line, got: %s", content)
	}
	if !strings.Contains(content, "**[10:30:01] You:** I build services.") {
		t.Errorf("expected candidate line, got: %s", content)
	}
}

func TestWriterReplacesPreviousExport(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, _ = w.Write(1, "SRE", []conversation.Turn{{Speaker: conversation.User, Text: "First."}})
	path, err := w.Write(1, "SRE", []conversation.Turn{{Speaker: conversation.User, Text: "Second."}})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "First.") {
		t.Fatalf("expected previous export replaced, got: %s", data)
	}
}
