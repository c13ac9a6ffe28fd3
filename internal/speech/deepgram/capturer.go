// Package deepgram captures spoken answers with Deepgram live transcription.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/interview-room/internal/audio"
	"github.com/sjawhar/interview-room/internal/speech"
)

var errConnect = errors.New("deepgram connect failed")

var initOnce sync.Once

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
}

// Clips archives the audio of each capture. *audio.Recorder satisfies it.
type Clips interface {
	Writer(dst io.Writer) io.Writer
	StartClip(name string) error
	EndClip() (string, error)
}

type Option func(*Capturer)

func WithClips(c Clips, prefix string) Option {
	return func(cp *Capturer) {
		cp.clips = c
		cp.clipPrefix = prefix
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cp *Capturer) {
		if l != nil {
			cp.logger = l
		}
	}
}

// Capturer streams one utterance per Capture call. Each call opens its own
// Deepgram connection and microphone stream.
type Capturer struct {
	cfg    Config
	source audio.Source
	logger *slog.Logger

	clips      Clips
	clipPrefix string
	mu         sync.Mutex
	clipSeq    int
}

func New(cfg Config, source audio.Source, opts ...Option) *Capturer {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	c := &Capturer{cfg: cfg, source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	initOnce.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})
	return c
}

func (c *Capturer) Supported() bool {
	return c.cfg.APIKey != "" && c.source != nil
}

func (c *Capturer) Capture(ctx context.Context, updates chan<- speech.Transcript) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cb := newCallback(ctx, updates, c.logger)

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          c.cfg.Model,
		Language:       c.cfg.Language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1500",
		VadEvents:      true,
		Encoding:       "linear16",
		SampleRate:     c.cfg.SampleRate,
		Channels:       1,
	}

	dg, err := client.NewWSUsingCallback(ctx, c.cfg.APIKey, cOptions, tOptions, cb)
	if err != nil {
		return fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		return errConnect
	}
	defer dg.Stop()

	var w io.Writer = dg
	if c.clips != nil {
		name := c.nextClip()
		if err := c.clips.StartClip(name); err != nil {
			c.logger.Warn("answer clip disabled", "error", err)
		} else {
			w = c.clips.Writer(dg)
			defer func() {
				if path, err := c.clips.EndClip(); err != nil {
					c.logger.Warn("close answer clip failed", "error", err)
				} else if path != "" {
					c.logger.Debug("answer clip saved", "path", path)
				}
			}()
		}
	}

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- audio.StreamWithRetry(ctx, c.source, w, time.Sleep, func(format string, args ...any) {
			c.logger.Warn(fmt.Sprintf(format, args...))
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-cb.done:
		cancel()
		<-streamErr
		return cb.err()
	case err := <-streamErr:
		if err != nil {
			return fmt.Errorf("stream microphone: %w", err)
		}
		return ctx.Err()
	}
}

func (c *Capturer) nextClip() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clipSeq++
	return fmt.Sprintf("%s%d", c.clipPrefix, c.clipSeq)
}

// callback turns Deepgram events into transcript updates. An utterance ends
// at speech_final or at an utterance-end event after something was heard.
type callback struct {
	ctx     context.Context
	updates chan<- speech.Transcript
	logger  *slog.Logger

	done     chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
	heard    bool
	lastErr  error
}

func newCallback(ctx context.Context, updates chan<- speech.Transcript, logger *slog.Logger) *callback {
	return &callback{ctx: ctx, updates: updates, logger: logger, done: make(chan struct{})}
}

func (c *callback) finish(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *callback) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *callback) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if text != "" {
		c.mu.Lock()
		c.heard = true
		c.mu.Unlock()

		select {
		case c.updates <- speech.Transcript{Text: text, Final: mr.IsFinal}:
		case <-c.ctx.Done():
			return nil
		}
	}

	if mr.SpeechFinal && c.hasHeard() {
		c.finish(nil)
	}
	return nil
}

func (c *callback) hasHeard() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heard
}

func (c *callback) UtteranceEnd(*api.UtteranceEndResponse) error {
	if c.hasHeard() {
		c.finish(nil)
	}
	return nil
}

func (c *callback) Open(*api.OpenResponse) error {
	c.logger.Debug("connected to Deepgram")
	return nil
}

func (c *callback) Metadata(*api.MetadataResponse) error { return nil }

func (c *callback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c *callback) Close(*api.CloseResponse) error {
	c.logger.Debug("disconnected from Deepgram")
	c.finish(nil)
	return nil
}

func (c *callback) Error(er *api.ErrorResponse) error {
	c.logger.Warn("deepgram error", "code", er.ErrCode, "description", er.Description)
	c.finish(fmt.Errorf("deepgram %s: %s", er.ErrCode, er.Description))
	return nil
}

func (c *callback) UnhandledEvent([]byte) error { return nil }
