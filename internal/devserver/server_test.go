package devserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/feedback"
	"github.com/sjawhar/interview-room/internal/interview"
	"github.com/sjawhar/interview-room/internal/llm"
	"github.com/sjawhar/interview-room/internal/storage"
)

type mockLLMClient struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
	last     []llm.Message
}

func (m *mockLLMClient) Complete(_ context.Context, messages []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = append([]llm.Message(nil), messages...)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLMClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type exportRecorder struct {
	mu    sync.Mutex
	calls []int64
}

func (e *exportRecorder) Export(_ context.Context, iv storage.Interview, _ []conversation.Turn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, iv.ID)
	return nil
}

type testEnv struct {
	server   *Server
	store    *storage.SQLiteStore
	http     *httptest.Server
	client   *interview.Client
	feedback *mockLLMClient
	exports  *exportRecorder
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	fb := &mockLLMClient{response: "## Overall\nSolid answers."}
	exports := &exportRecorder{}
	base := []Option{
		WithEvaluator(feedback.New(fb, store, feedback.WithBackoff(time.Millisecond))),
		WithExporter(exports),
	}
	s := New(store, append(base, opts...)...)
	srv := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		srv.Close()
		s.Close()
		_ = store.Close()
	})

	return &testEnv{
		server:   s,
		store:    store,
		http:     srv,
		client:   interview.NewClient(srv.URL + "/api"),
		feedback: fb,
		exports:  exports,
	}
}

func (e *testEnv) create(t *testing.T) interview.Interview {
	t.Helper()
	iv, err := e.client.Create(context.Background(), interview.CreateRequest{
		Role: "Backend Engineer", Experience: "3 years", Difficulty: "medium", UserID: 42,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return iv
}

func TestAPICreateListStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	iv := env.create(t)
	if iv.ID == 0 || iv.Status != storage.StatusCreated || iv.Role != "Backend Engineer" {
		t.Fatalf("unexpected interview %+v", iv)
	}

	list, err := env.client.List(ctx, 42)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != iv.ID {
		t.Fatalf("expected created interview listed, got %+v", list)
	}

	if err := env.client.MarkStarted(ctx, iv.ID); err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}
	got, _ := env.store.GetInterview(iv.ID)
	if got.Status != storage.StatusActive || got.StartedAt == nil {
		t.Fatalf("expected active interview, got %+v", got)
	}
}

func TestAPICreateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.http.URL+"/api/interviews", "application/json", strings.NewReader(`{"role":"","userId":1}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp2, err := http.Post(env.http.URL+"/api/interviews", "application/json", strings.NewReader(`not json`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp2.StatusCode)
	}
}

func TestAPIUnknownInterview(t *testing.T) {
	env := newTestEnv(t)

	err := env.client.MarkStarted(context.Background(), 999)
	var callErr *interview.CallError
	if !errors.As(err, &callErr) || callErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 CallError, got %v", err)
	}
	if !errors.Is(err, interview.ErrExternalCall) {
		t.Fatalf("expected ErrExternalCall, got %v", err)
	}

	resp, err := http.Get(env.http.URL + "/api/interviews/abc/result")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", resp.StatusCode)
	}
}

func TestAPIEndRunsFeedbackOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	iv := env.create(t)
	_ = env.client.MarkStarted(ctx, iv.ID)

	for _, turn := range []conversation.Turn{
		{Speaker: conversation.Assistant, Text: "Tell me about a system you designed end to end and the tradeoffs you made."},
		{Speaker: conversation.User, Text: "I designed a queue based ingestion pipeline and chose at least once delivery with idempotent writers."},
	} {
		if err := env.store.AppendTurn(iv.ID, turn); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}

	if err := env.client.MarkEnded(ctx, iv.ID); err != nil {
		t.Fatalf("MarkEnded failed: %v", err)
	}
	if err := env.client.MarkEnded(ctx, iv.ID); err != nil {
		t.Fatalf("second MarkEnded failed: %v", err)
	}
	env.server.Wait()

	if env.feedback.callCount() != 1 {
		t.Fatalf("expected one feedback completion, got %d", env.feedback.callCount())
	}

	res, err := env.client.Result(ctx, iv.ID)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if res.Status != storage.StatusEnded || res.FeedbackStatus != storage.FeedbackCompleted {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Feedback != "## Overall\nSolid answers." {
		t.Fatalf("unexpected feedback %q", res.Feedback)
	}
	if !strings.HasPrefix(res.ChatTranscript, "Interviewer: Tell me about a system") ||
		!strings.Contains(res.ChatTranscript, "\nYou: I designed a queue") {
		t.Fatalf("unexpected transcript %q", res.ChatTranscript)
	}

	env.exports.mu.Lock()
	defer env.exports.mu.Unlock()
	if len(env.exports.calls) != 1 || env.exports.calls[0] != iv.ID {
		t.Fatalf("expected one export, got %v", env.exports.calls)
	}
}

func TestAPIFeedbackFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.feedback.err = errors.New("provider down")
	ctx := context.Background()
	iv := env.create(t)

	_ = env.store.AppendTurn(iv.ID, conversation.Turn{Speaker: conversation.User,
		Text: strings.Repeat("word ", 30)})
	if err := env.client.MarkEnded(ctx, iv.ID); err != nil {
		t.Fatalf("MarkEnded failed: %v", err)
	}
	env.server.Wait()

	got, _ := env.store.GetInterview(iv.ID)
	if got.FeedbackStatus != storage.FeedbackFailed {
		t.Fatalf("expected failed feedback, got %q", got.FeedbackStatus)
	}
}

func TestAPIStartAfterEndConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	iv := env.create(t)

	_ = env.client.MarkEnded(ctx, iv.ID)
	env.server.Wait()

	err := env.client.MarkStarted(ctx, iv.ID)
	var callErr *interview.CallError
	if !errors.As(err, &callErr) || callErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 CallError, got %v", err)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	env := newTestEnv(t)
	env.create(t)

	resp, err := http.Get(env.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `interview_room_http_requests_total{route="create",status="201"} 1`) {
		t.Fatalf("expected create request counted, got:\n%s", body)
	}

	resp, err = http.Get(env.http.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}
}
