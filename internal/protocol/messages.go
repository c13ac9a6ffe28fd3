package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeStart        = "start"
	TypeUserMessage  = "user_message"
	TypeAIResponse   = "ai_response"
	TypeQuestion     = "question"
	TypeSessionEnded = "session_ended"
)

// Start is the handshake written as soon as a channel opens.
type Start struct {
	Type      string `json:"type"`
	SessionID int64  `json:"sessionId"`
}

type UserMessage struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	InterviewID int64  `json:"interviewId"`
}

// Inbound is any server frame. Assistant turns carry their text in one of
// Text, Message or Content depending on the server version.
type Inbound struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// AssistantResponse is sent by the server for every interviewer turn.
type AssistantResponse struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SessionEnded tells connected clients that the interview was closed server side.
type SessionEnded struct {
	Type      string `json:"type"`
	SessionID int64  `json:"sessionId"`
}

func NewStart(sessionID int64) Start {
	return Start{Type: TypeStart, SessionID: sessionID}
}

func NewUserMessage(text string, interviewID int64) UserMessage {
	return UserMessage{Type: TypeUserMessage, Text: text, InterviewID: interviewID}
}

func NewAssistantResponse(kind, text string) AssistantResponse {
	if kind == "" {
		kind = TypeAIResponse
	}
	return AssistantResponse{Type: kind, Text: text}
}

// IsAssistantTurn reports whether the frame carries an interviewer utterance.
func (m Inbound) IsAssistantTurn() bool {
	return m.Type == TypeAIResponse || m.Type == TypeQuestion
}

// Payload returns the first non-empty of text, message and content.
func (m Inbound) Payload() string {
	for _, v := range []string{m.Text, m.Message, m.Content} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DecodeInbound parses a server frame. Frames without a type are rejected.
func DecodeInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("decode inbound frame: %w", err)
	}
	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return Inbound{}, fmt.Errorf("inbound frame missing type")
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return msg, nil
}

// ClientFrame is the client-to-server union decoded by the dev server.
type ClientFrame struct {
	Type        string `json:"type"`
	SessionID   int64  `json:"sessionId,omitempty"`
	InterviewID int64  `json:"interviewId,omitempty"`
	Text        string `json:"text,omitempty"`
}

func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientFrame{}, fmt.Errorf("decode client frame: %w", err)
	}
	frame.Type = strings.TrimSpace(frame.Type)
	if frame.Type == "" {
		return ClientFrame{}, fmt.Errorf("client frame missing type")
	}
	return frame, nil
}

const TypeError = "error"

// ErrorFrame reports a rejected client frame. The connection stays open.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: message}
}
