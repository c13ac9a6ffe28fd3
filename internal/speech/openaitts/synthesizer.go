// Package openaitts reads interviewer turns aloud with OpenAI text-to-speech.
package openaitts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// SampleRate is the rate of the raw PCM returned by the speech endpoint.
const SampleRate = 24000

// Player plays raw PCM16 mono audio. *audio.Player satisfies it.
type Player interface {
	Play(ctx context.Context, pcm io.Reader) error
}

type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

type Config struct {
	APIKey string
	Model  string
	Voice  string
	Speed  float64
}

type Synthesizer struct {
	client speechClient
	player Player
	cfg    Config
}

func New(cfg Config, player Player) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}

	s := &Synthesizer{player: player, cfg: cfg}
	if cfg.APIKey != "" {
		s.client = openai.NewClient(cfg.APIKey)
	}
	return s
}

func (s *Synthesizer) Supported() bool {
	return s.client != nil && s.player != nil
}

// Speak streams the synthesized answer straight into the player.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          s.cfg.Speed,
	})
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	if err := s.player.Play(ctx, resp); err != nil {
		return fmt.Errorf("play speech: %w", err)
	}
	return nil
}
