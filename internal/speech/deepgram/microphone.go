package deepgram

import (
	"context"
	"fmt"
	"io"
	"sync"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"
)

// Microphone is an audio.Source on top of the Deepgram SDK microphone. A new
// device stream is opened for every capture.
type Microphone struct {
	SampleRate int
}

// InitMicrophone prepares the SDK audio layer. The returned func tears it down.
func InitMicrophone() func() {
	microphone.Initialize()
	return microphone.Teardown
}

func (m Microphone) Stream(ctx context.Context, w io.Writer) error {
	mic, err := microphone.New(microphone.AudioConfig{InputChannels: 1, SamplingRate: float32(m.SampleRate)})
	if err != nil {
		return fmt.Errorf("open microphone at %d Hz: %w", m.SampleRate, err)
	}
	if err := mic.Start(); err != nil {
		return fmt.Errorf("start microphone: %w", err)
	}

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { _ = mic.Stop() }) }
	defer stop()

	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := mic.Stream(w); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
