// Package gcpspeech captures spoken answers with Google Cloud Speech
// streaming recognition.
package gcpspeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/sjawhar/interview-room/internal/audio"
	ispeech "github.com/sjawhar/interview-room/internal/speech"
)

type Config struct {
	Language        string
	SampleRate      int
	CredentialsFile string
}

type Option func(*Capturer)

func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder tees captured audio into rec. Clip boundaries are left to the caller.
func WithRecorder(rec *audio.Recorder) Option {
	return func(c *Capturer) {
		c.recorder = rec
	}
}

type Capturer struct {
	client   *speech.Client
	source   audio.Source
	cfg      Config
	recorder *audio.Recorder
	logger   *slog.Logger
}

// New connects to Cloud Speech using the credentials file when set, or
// application default credentials otherwise.
func New(ctx context.Context, cfg Config, source audio.Source, opts ...Option) (*Capturer, error) {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	c := &Capturer{client: client, source: source, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Capturer) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Capturer) Supported() bool {
	return c.client != nil && c.source != nil
}

func (c *Capturer) Capture(ctx context.Context, updates chan<- ispeech.Transcript) error {
	stream, err := c.client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("start streaming recognize: %w", err)
	}

	if err := stream.Send(configRequest(c.cfg)); err != nil {
		return fmt.Errorf("send streaming config: %w", err)
	}

	micCtx, stopMic := context.WithCancel(ctx)
	defer stopMic()

	sendErr := make(chan error, 1)
	go func() {
		var w io.Writer = &audioWriter{send: stream.Send}
		if c.recorder != nil {
			w = c.recorder.Writer(w)
		}
		err := audio.StreamWithRetry(micCtx, c.source, w, time.Sleep, func(format string, args ...any) {
			c.logger.Warn(fmt.Sprintf(format, args...))
		})
		_ = stream.CloseSend()
		sendErr <- err
	}()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive transcripts: %w", err)
		}

		if forward(ctx, resp, updates) {
			stopMic()
		}
	}

	stopMic()
	if err := <-sendErr; err != nil {
		return fmt.Errorf("stream microphone: %w", err)
	}
	return ctx.Err()
}

func configRequest(cfg Config) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(cfg.SampleRate),
					LanguageCode:               cfg.Language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  true,
				SingleUtterance: true,
			},
		},
	}
}

// forward sends the best alternative of every result and reports whether the
// recognizer has detected the end of the utterance.
func forward(ctx context.Context, resp *speechpb.StreamingRecognizeResponse, updates chan<- ispeech.Transcript) bool {
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		select {
		case updates <- ispeech.Transcript{Text: text, Final: result.GetIsFinal()}:
		case <-ctx.Done():
			return true
		}
	}
	return resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE
}

// audioWriter sends each PCM chunk as one audio request.
type audioWriter struct {
	send func(*speechpb.StreamingRecognizeRequest) error
}

func (w *audioWriter) Write(p []byte) (int, error) {
	chunk := append([]byte(nil), p...)
	err := w.send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
