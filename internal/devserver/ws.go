package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/protocol"
	"github.com/sjawhar/interview-room/internal/storage"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoute(mux *http.ServeMux, s *Server) {
	mux.HandleFunc("GET /ws/interview", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("ws upgrade error", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		sess := &wsSession{server: s, conn: conn, logger: s.logger}
		s.metrics.RecordSessionOpen()
		outcome := sess.run(r.Context())
		s.metrics.RecordSessionClose(outcome)
	})
}

// wsSession serves one socket. Frames are handled in arrival order; broker
// events are written from a second goroutine, so writes go through writeMu.
type wsSession struct {
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	ended bool

	interview storage.Interview
	started   bool
	release   func()
}

func (ws *wsSession) run(ctx context.Context) string {
	ws.conn.SetReadLimit(maxFrameSize)
	defer func() {
		if ws.release != nil {
			ws.release()
		}
	}()

	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.logger.Warn("ws read error", "interview_id", ws.interview.ID, "error", err)
				return "error"
			}
			if ws.sawEnd() {
				return "ended"
			}
			return "disconnected"
		}

		frame, err := protocol.DecodeClientFrame(data)
		if err != nil {
			ws.reject(err.Error())
			continue
		}

		switch frame.Type {
		case protocol.TypeStart:
			ws.handleStart(ctx, frame)
		case protocol.TypeUserMessage:
			ws.handleUserMessage(ctx, frame)
		default:
			ws.reject("unsupported frame type " + frame.Type)
		}
	}
}

func (ws *wsSession) handleStart(ctx context.Context, frame protocol.ClientFrame) {
	if ws.started {
		ws.reject("session already started")
		return
	}

	iv, err := ws.server.store.GetInterview(frame.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ws.reject("unknown interview")
		} else {
			ws.logger.Error("load interview failed", "interview_id", frame.SessionID, "error", err)
			ws.reject("interview unavailable")
		}
		return
	}
	if iv.Status == storage.StatusEnded {
		ws.reject("interview has ended")
		return
	}

	ws.interview = iv
	ws.started = true
	ws.logger = ws.logger.With("interview_id", iv.ID)

	events, release := ws.server.broker.Subscribe(iv.ID)
	ws.release = release
	go ws.forward(events)

	turns, err := ws.server.store.Turns(iv.ID)
	if err != nil {
		ws.logger.Error("load turns failed", "error", err)
		ws.reject("interview unavailable")
		return
	}
	ws.logger.Info("interview session attached", "turns", len(turns))
	if len(turns) == 0 {
		ws.ask(ctx, turns, protocol.TypeQuestion)
	}
}

func (ws *wsSession) handleUserMessage(ctx context.Context, frame protocol.ClientFrame) {
	if !ws.started {
		ws.reject("send start before messages")
		return
	}
	if frame.InterviewID != 0 && frame.InterviewID != ws.interview.ID {
		ws.reject("interview id does not match session")
		return
	}
	text := strings.TrimSpace(frame.Text)
	if text == "" {
		ws.reject("empty message")
		return
	}

	iv, err := ws.server.store.GetInterview(ws.interview.ID)
	if err != nil {
		ws.logger.Error("reload interview failed", "error", err)
		ws.reject("interview unavailable")
		return
	}
	if iv.Status == storage.StatusEnded {
		ws.reject("interview has ended")
		return
	}
	ws.interview = iv

	if err := ws.server.store.AppendTurn(iv.ID, conversation.Turn{Speaker: conversation.User, Text: text, At: time.Now().UTC()}); err != nil {
		ws.logger.Error("store user turn failed", "error", err)
		ws.reject("message not saved")
		return
	}
	ws.server.metrics.RecordMessage(string(conversation.User))

	turns, err := ws.server.store.Turns(iv.ID)
	if err != nil {
		ws.logger.Error("load turns failed", "error", err)
		return
	}
	ws.ask(ctx, turns, protocol.TypeAIResponse)
}

func (ws *wsSession) ask(ctx context.Context, turns []conversation.Turn, kind string) {
	start := time.Now()
	text, done := ws.server.interviewer.Next(ctx, ws.interview, turns)
	ws.server.metrics.ObserveInterviewer(time.Since(start))

	turn := conversation.Turn{Speaker: conversation.Assistant, Text: text, At: time.Now().UTC()}
	if err := ws.server.store.AppendTurn(ws.interview.ID, turn); err != nil {
		ws.logger.Error("store interviewer turn failed", "error", err)
	}
	ws.server.metrics.RecordMessage(string(conversation.Assistant))
	if done {
		ws.logger.Info("question budget reached")
	}

	if err := ws.write(protocol.NewAssistantResponse(kind, text)); err != nil {
		ws.logger.Warn("ws write failed", "error", err)
	}
}

func (ws *wsSession) forward(events <-chan Event) {
	for ev := range events {
		if ev.Type != EventSessionEnded {
			continue
		}
		ws.writeMu.Lock()
		ws.ended = true
		ws.writeMu.Unlock()
		if err := ws.write(protocol.SessionEnded{Type: protocol.TypeSessionEnded, SessionID: ev.InterviewID}); err != nil {
			ws.logger.Warn("ws write failed", "error", err)
			return
		}
	}
}

func (ws *wsSession) sawEnd() bool {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return ws.ended
}

func (ws *wsSession) reject(msg string) {
	if err := ws.write(protocol.NewError(msg)); err != nil {
		ws.logger.Warn("ws write failed", "error", err)
	}
}

func (ws *wsSession) write(v any) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.conn.WriteJSON(v)
}
