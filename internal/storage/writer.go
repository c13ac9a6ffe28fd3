package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/transcript"
)

// Writer exports finished interview transcripts as markdown files, one per
// interview.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write replaces the transcript file for the interview and returns its path.
func (w *Writer) Write(interviewID int64, role string, turns []conversation.Turn) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.Path(interviewID)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "# Interview %d: %s\n\n%s", interviewID, role, transcript.FormatMarkdown(turns)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (w *Writer) Path(interviewID int64) string {
	return filepath.Join(w.dir, fmt.Sprintf("interview-%d.md", interviewID))
}
