package openaitts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type mockSpeechClient struct {
	req   openai.CreateSpeechRequest
	audio []byte
	err   error
}

func (m *mockSpeechClient) CreateSpeech(_ context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error) {
	m.req = req
	if m.err != nil {
		return openai.RawResponse{}, m.err
	}
	return openai.RawResponse{ReadCloser: io.NopCloser(bytes.NewReader(m.audio))}, nil
}

type mockPlayer struct {
	played []byte
	err    error
}

func (m *mockPlayer) Play(ctx context.Context, pcm io.Reader) error {
	data, err := io.ReadAll(pcm)
	if err != nil {
		return err
	}
	m.played = data
	return m.err
}

func TestSpeakPlaysSynthesizedPCM(t *testing.T) {
	client := &mockSpeechClient{audio: []byte{1, 2, 3, 4}}
	player := &mockPlayer{}
	s := New(Config{Voice: "nova", Speed: 0.9}, player)
	s.client = client

	if err := s.Speak(context.Background(), "Tell me about yourself"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	if client.req.Input != "Tell me about yourself" {
		t.Fatalf("unexpected input %q", client.req.Input)
	}
	if client.req.ResponseFormat != openai.SpeechResponseFormatPcm {
		t.Fatalf("expected pcm format, got %q", client.req.ResponseFormat)
	}
	if client.req.Voice != "nova" || client.req.Speed != 0.9 || client.req.Model != openai.TTSModel1 {
		t.Fatalf("unexpected request %+v", client.req)
	}
	if !bytes.Equal(player.played, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected played audio %v", player.played)
	}
}

func TestSpeakWrapsErrors(t *testing.T) {
	boom := errors.New("rate limited")
	s := New(Config{}, &mockPlayer{})
	s.client = &mockSpeechClient{err: boom}

	if err := s.Speak(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}

	player := &mockPlayer{err: context.Canceled}
	s = New(Config{}, player)
	s.client = &mockSpeechClient{}
	if err := s.Speak(context.Background(), "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped player error, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	if New(Config{}, &mockPlayer{}).Supported() {
		t.Fatal("expected unsupported without api key")
	}
	if New(Config{APIKey: "key"}, nil).Supported() {
		t.Fatal("expected unsupported without player")
	}
	if !New(Config{APIKey: "key"}, &mockPlayer{}).Supported() {
		t.Fatal("expected supported")
	}
}
