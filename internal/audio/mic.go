package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

const defaultFramesPerBuffer = 1024

// Mic is a mono PortAudio capture stream.
type Mic struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
}

// NewMic opens a PortAudio capture stream with the given sample rate and buffer size (in frames).
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf, sampleRate: sampleRate}, nil
}

// OpenMic tries each rate in order and returns the first device stream that opens.
func OpenMic(rates []int, framesPerBuffer int) (*Mic, error) {
	var lastErr error
	for _, rate := range rates {
		mic, err := NewMic(rate, framesPerBuffer)
		if err == nil {
			return mic, nil
		}
		lastErr = fmt.Errorf("open mic at %d Hz: %w", rate, err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("open mic: no sample rates to try")
	}
	return nil, lastErr
}

func (m *Mic) SampleRate() int { return m.sampleRate }

func (m *Mic) Close() error { return m.stream.Close() }

// Stream starts the device, writes PCM16-LE to w and stops it again when ctx
// ends.
func (m *Mic) Stream(ctx context.Context, w io.Writer) error {
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("start mic: %w", err)
	}
	defer func() { _ = m.stream.Stop() }()

	out := make([]byte, len(m.buf)*2)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.stream.Read(); err != nil {
			return err
		}
		encodePCM16(out, m.buf)
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
}

func encodePCM16(dst []byte, samples []int16) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
}

// decodePCM16 fills dst from little-endian bytes and returns the sample count.
func decodePCM16(dst []int16, src []byte) int {
	n := min(len(src)/2, len(dst))
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	return n
}
