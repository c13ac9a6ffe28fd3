// Package audio wraps PortAudio capture and playback and archives captured
// answers as WAV clips.
package audio

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Init must be called once before opening any stream. The returned func
// releases PortAudio.
func Init() (func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return func() {}, err
	}
	return func() { _ = portaudio.Terminate() }, nil
}

// Source streams PCM16-LE mono audio into w until ctx ends or the device fails.
type Source interface {
	Stream(ctx context.Context, w io.Writer) error
}

// StreamWithRetry restarts the source after input overflows, which some
// devices report under load. Any other error ends streaming.
func StreamWithRetry(ctx context.Context, src Source, w io.Writer, wait func(time.Duration), logf func(string, ...any)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := src.Stream(ctx, w)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			logf("mic input overflow, restarting stream")
			wait(250 * time.Millisecond)
			continue
		}
		return err
	}
}
