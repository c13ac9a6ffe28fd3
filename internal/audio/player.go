package audio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// Player writes raw PCM16-LE mono audio to the default output device.
type Player struct {
	sampleRate      int
	framesPerBuffer int
}

func NewPlayer(sampleRate int) *Player {
	return &Player{sampleRate: sampleRate, framesPerBuffer: defaultFramesPerBuffer}
}

// Play blocks until pcm is drained or ctx is cancelled.
func (p *Player) Play(ctx context.Context, pcm io.Reader) error {
	buf := make([]int16, p.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	raw := make([]byte, len(buf)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := io.ReadFull(pcm, raw)
		if n > 0 {
			samples := decodePCM16(buf, raw[:n])
			clear(buf[samples:])
			if err := stream.Write(); err != nil {
				return fmt.Errorf("write output stream: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
