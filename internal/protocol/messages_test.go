package protocol

import (
	"encoding/json"
	"testing"
)

func TestHandshakeShape(t *testing.T) {
	b, err := json.Marshal(NewStart(42))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `{"type":"start","sessionId":42}` {
		t.Fatalf("unexpected handshake %s", b)
	}
}

func TestUserMessageShape(t *testing.T) {
	b, err := json.Marshal(NewUserMessage("I have 5 years of experience", 7))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"type":"user_message","text":"I have 5 years of experience","interviewId":7}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestInboundPayloadFirstNonEmptyWins(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"type":"question","text":"a","message":"b","content":"c"}`, "a"},
		{`{"type":"question","message":"b","content":"c"}`, "b"},
		{`{"type":"ai_response","text":"  ","content":"c"}`, "c"},
		{`{"type":"ai_response"}`, ""},
	}

	for _, tc := range cases {
		msg, err := DecodeInbound([]byte(tc.raw))
		if err != nil {
			t.Fatalf("decode %s failed: %v", tc.raw, err)
		}
		if !msg.IsAssistantTurn() {
			t.Fatalf("expected assistant turn for %s", tc.raw)
		}
		if got := msg.Payload(); got != tc.want {
			t.Errorf("payload of %s: expected %q, got %q", tc.raw, tc.want, got)
		}
	}
}

func TestDecodeInboundRejectsUntyped(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{"text":"hi"}`)); err == nil {
		t.Fatal("expected error for frame without type")
	}
	if _, err := DecodeInbound([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestUnknownTypeIsNotAssistantTurn(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"score_update","text":"90"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.IsAssistantTurn() {
		t.Fatal("score_update must not be treated as an assistant turn")
	}
	if len(msg.Raw) == 0 {
		t.Fatal("expected raw frame to be kept")
	}
}
