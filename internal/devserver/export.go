package devserver

import (
	"context"
	"fmt"

	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/storage"
)

type Exporter interface {
	Export(ctx context.Context, iv storage.Interview, turns []conversation.Turn) error
}

type Uploader interface {
	Upload(ctx context.Context, localPath, name string) error
}

// FileExporter writes the transcript to disk and, when an uploader is set,
// pushes the file to remote storage.
type FileExporter struct {
	writer   *storage.Writer
	uploader Uploader
}

func NewFileExporter(writer *storage.Writer, uploader Uploader) *FileExporter {
	return &FileExporter{writer: writer, uploader: uploader}
}

func (e *FileExporter) Export(ctx context.Context, iv storage.Interview, turns []conversation.Turn) error {
	path, err := e.writer.Write(iv.ID, iv.Role, turns)
	if err != nil {
		return err
	}
	if e.uploader == nil {
		return nil
	}
	if err := e.uploader.Upload(ctx, path, fmt.Sprintf("interview-room-%d", iv.ID)); err != nil {
		return fmt.Errorf("upload transcript: %w", err)
	}
	return nil
}
