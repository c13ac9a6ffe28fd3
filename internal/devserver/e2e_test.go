package devserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sjawhar/interview-room/internal/channel"
	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/session"
	"github.com/sjawhar/interview-room/internal/speech"
	"github.com/sjawhar/interview-room/internal/storage"
)

func waitSnapshot(t *testing.T, c *session.Controller, what string, cond func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		snap := c.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %s, last snapshot %+v", what, snap)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestControllerAgainstDevServer(t *testing.T) {
	env := newTestEnv(t)
	iv := env.create(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/interview"
	ctrl := session.NewController(iv.ID, env.client, channel.New(wsURL), speech.New(nil, nil))
	defer ctrl.Close()

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSnapshot(t, ctrl, "opening question", func(s session.Snapshot) bool { return len(s.Turns) == 1 })

	if err := ctrl.Send("I have five years of backend experience."); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	snap := waitSnapshot(t, ctrl, "follow-up question", func(s session.Snapshot) bool { return len(s.Turns) == 3 })
	if snap.Turns[0].Speaker != conversation.Assistant || snap.Turns[1].Speaker != conversation.User || snap.Turns[2].Speaker != conversation.Assistant {
		t.Fatalf("unexpected turn order %+v", snap.Turns)
	}

	if err := ctrl.End(context.Background()); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if ctrl.State() != session.StateEnded {
		t.Fatalf("expected ended, got %s", ctrl.State())
	}
	env.server.Wait()

	got, err := env.store.GetInterview(iv.ID)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if got.Status != storage.StatusEnded || got.StartedAt == nil {
		t.Fatalf("expected started then ended interview, got %+v", got)
	}

	stored, _ := env.store.Turns(iv.ID)
	if len(stored) != len(snap.Turns) {
		t.Fatalf("expected server and client logs to agree, got %d vs %d", len(stored), len(snap.Turns))
	}
}
