// Package devserver is a local implementation of the interview service and its
// websocket session protocol, so the interview room can run end to end without
// the hosted backend.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sjawhar/interview-room/internal/conversation"
	"github.com/sjawhar/interview-room/internal/feedback"
	"github.com/sjawhar/interview-room/internal/storage"
	"github.com/sjawhar/interview-room/internal/transcript"
)

type Store interface {
	CreateInterview(userID int64, role, experience, difficulty string) (storage.Interview, error)
	GetInterview(id int64) (storage.Interview, error)
	ListInterviews(userID int64) ([]storage.Interview, error)
	MarkStarted(id int64) error
	MarkEnded(id int64) error
	AppendTurn(interviewID int64, turn conversation.Turn) error
	Turns(interviewID int64) ([]conversation.Turn, error)
	UpdateFeedback(interviewID int64, feedback, status string) error
}

type Option func(*Server)

func WithBroker(b Broker) Option {
	return func(s *Server) {
		if b != nil {
			s.broker = b
		}
	}
}

func WithInterviewer(iv *Interviewer) Option {
	return func(s *Server) {
		if iv != nil {
			s.interviewer = iv
		}
	}
}

func WithEvaluator(e *feedback.Evaluator) Option {
	return func(s *Server) {
		if e != nil {
			s.evaluator = e
		}
	}
}

func WithExporter(e Exporter) Option {
	return func(s *Server) {
		s.exporter = e
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

type Server struct {
	store       Store
	broker      Broker
	interviewer *Interviewer
	evaluator   *feedback.Evaluator
	exporter    Exporter
	metrics     *Metrics
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store Store, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:  store,
		broker: NewHub(),
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interviewer == nil {
		s.interviewer = NewInterviewer(nil, 0, s.logger)
	}
	if s.evaluator == nil {
		s.evaluator = feedback.New(nil, nil, feedback.WithLogger(s.logger))
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("")
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, s)
	registerWSRoute(mux, s)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// Wait blocks until background feedback work has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Close cancels background work and waits for it.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) publish(eventType string, interviewID int64) {
	if err := s.broker.Publish(s.ctx, newEvent(eventType, interviewID)); err != nil {
		s.logger.Warn("publish event failed", "type", eventType, "interview_id", interviewID, "error", err)
	}
}

// finish runs once per ended interview: feedback, then export.
func (s *Server) finish(iv storage.Interview) {
	defer s.wg.Done()
	logger := s.logger.With("interview_id", iv.ID)

	turns, err := s.store.Turns(iv.ID)
	if err != nil {
		logger.Error("load turns for feedback failed", "error", err)
		return
	}

	if err := s.store.UpdateFeedback(iv.ID, "", storage.FeedbackRunning); err != nil {
		logger.Warn("mark feedback running failed", "error", err)
	}

	text, err := s.evaluator.Evaluate(s.ctx, feedback.Request{
		InterviewID: iv.ID,
		Role:        iv.Role,
		Experience:  iv.Experience,
		Difficulty:  iv.Difficulty,
		Transcript:  transcript.Format(turns),
	})
	switch {
	case errors.Is(err, feedback.ErrAlreadyClaimed):
		logger.Info("feedback already requested, skipping")
		return
	case err != nil:
		logger.Error("feedback generation failed", "error", err)
		s.metrics.RecordFeedback(storage.FeedbackFailed)
		if uerr := s.store.UpdateFeedback(iv.ID, "", storage.FeedbackFailed); uerr != nil {
			logger.Warn("mark feedback failed", "error", uerr)
		}
	default:
		s.metrics.RecordFeedback(storage.FeedbackCompleted)
		if err := s.store.UpdateFeedback(iv.ID, text, storage.FeedbackCompleted); err != nil {
			logger.Error("store feedback failed", "error", err)
		} else {
			s.publish(EventFeedbackReady, iv.ID)
		}
	}

	if s.exporter != nil {
		if err := s.exporter.Export(s.ctx, iv, turns); err != nil {
			logger.Warn("transcript export failed", "error", err)
		}
	}
}
