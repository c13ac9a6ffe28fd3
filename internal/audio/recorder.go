package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const defaultSampleRate = 16000

// Recorder archives captured answers. Audio written through Writer while a
// clip is open lands in <dir>/<clip>.wav once the clip ends. With no open clip
// the tee is a pass-through.
type Recorder struct {
	dir string

	mu         sync.Mutex
	clip       string
	rawPath    string
	rawFile    *os.File
	sampleRate int

	encode func(rawPath, clip string) (string, error)
}

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = filepath.Join("data", "answers")
	}

	r := &Recorder{dir: dir, sampleRate: defaultSampleRate}
	r.encode = r.encodeWAV
	return r
}

func (r *Recorder) SetSampleRate(sampleRate int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sampleRate > 0 {
		r.sampleRate = sampleRate
	}
}

func (r *Recorder) Writer(dst io.Writer) io.Writer {
	return &teeWriter{recorder: r, dst: dst}
}

// StartClip opens a new clip, discarding any clip left open.
func (r *Recorder) StartClip(clip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create answers directory: %w", err)
	}

	if r.rawFile != nil {
		_ = r.rawFile.Close()
		_ = os.Remove(r.rawPath)
	}

	rawPath := filepath.Join(r.dir, clip+".pcm")
	rawFile, err := os.OpenFile(rawPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open raw pcm file: %w", err)
	}

	r.clip = clip
	r.rawPath = rawPath
	r.rawFile = rawFile
	return nil
}

// EndClip closes the open clip and returns the archived file path. It
// returns "" when no clip is open.
func (r *Recorder) EndClip() (string, error) {
	r.mu.Lock()
	if r.rawFile == nil {
		r.mu.Unlock()
		return "", nil
	}

	clip := r.clip
	rawPath := r.rawPath
	rawFile := r.rawFile

	r.clip = ""
	r.rawPath = ""
	r.rawFile = nil
	r.mu.Unlock()

	if err := rawFile.Close(); err != nil {
		return "", fmt.Errorf("close raw pcm file: %w", err)
	}

	path, err := r.encode(rawPath, clip)
	if err != nil {
		return "", err
	}

	_ = os.Remove(rawPath)
	return path, nil
}

func (r *Recorder) writePCM(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rawFile == nil {
		return nil
	}

	if _, err := r.rawFile.Write(data); err != nil {
		return fmt.Errorf("write raw pcm bytes: %w", err)
	}
	return nil
}

func (r *Recorder) encodeWAV(rawPath, clip string) (string, error) {
	r.mu.Lock()
	sampleRate := r.sampleRate
	r.mu.Unlock()

	wavPath := filepath.Join(r.dir, clip+".wav")
	if err := pcmFileToWAV(rawPath, wavPath, sampleRate); err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}
	return wavPath, nil
}

type teeWriter struct {
	recorder *Recorder
	dst      io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if err != nil {
		return n, err
	}

	if err := w.recorder.writePCM(p[:n]); err != nil {
		return n, err
	}

	return n, nil
}
