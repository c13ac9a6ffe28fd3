package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sjawhar/interview-room/internal/config"
	"github.com/sjawhar/interview-room/internal/devserver"
	"github.com/sjawhar/interview-room/internal/feedback"
	"github.com/sjawhar/interview-room/internal/gdrive"
	"github.com/sjawhar/interview-room/internal/llm"
	"github.com/sjawhar/interview-room/internal/storage"
)

func main() {
	configPath := flag.String("config", "interview-room.yaml", "path to YAML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn("config", "warning", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewSQLiteStore(cfg.DevServer.DBPath)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	keys := llm.Keys{OpenAI: cfg.OpenAIAPIKey, Anthropic: cfg.AnthropicAPIKey, Gemini: cfg.GeminiAPIKey}
	interviewerLLM := modelClient(logger, "interviewer", cfg.DevServer.InterviewerModel, keys, llm.WithMaxTokens(300), llm.WithTemperature(0.7))
	feedbackModel := cfg.DevServer.FeedbackModel
	if feedbackModel == "" {
		feedbackModel = cfg.DevServer.InterviewerModel
	}
	feedbackLLM := modelClient(logger, "feedback", feedbackModel, keys)

	opts := []devserver.Option{
		devserver.WithLogger(logger),
		devserver.WithInterviewer(devserver.NewInterviewer(interviewerLLM, cfg.DevServer.MaxQuestions, logger)),
		devserver.WithEvaluator(feedback.New(feedbackLLM, store, feedback.WithLogger(logger))),
		devserver.WithMetrics(devserver.NewMetrics("")),
	}

	if cfg.DevServer.RedisAddr != "" {
		broker, err := devserver.NewRedisBroker(ctx, cfg.DevServer.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.Warn("redis broker disabled, using in-memory hub", "error", err)
		} else {
			defer func() { _ = broker.Close() }()
			opts = append(opts, devserver.WithBroker(broker))
			logger.Info("session events via redis", "addr", cfg.DevServer.RedisAddr)
		}
	}

	writer := storage.NewWriter(filepath.Join(filepath.Dir(cfg.DevServer.DBPath), "transcripts"))
	exporter := devserver.NewFileExporter(writer, nil)
	if folderID := cfg.DevServer.GDriveFolderID; folderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.DevServer.GoogleCredentialsFile, folderID)
		if syncErr != nil {
			logger.Warn("gdrive export disabled", "error", syncErr)
		} else {
			exporter = devserver.NewFileExporter(writer, syncer)
		}
	}
	opts = append(opts, devserver.WithExporter(exporter))

	srv := devserver.New(store, opts...)
	httpServer := &http.Server{Addr: cfg.DevServer.Addr, Handler: srv.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("interview dev server listening", "addr", cfg.DevServer.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("interview dev server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	srv.Close()
}

func modelClient(logger *slog.Logger, purpose, model string, keys llm.Keys, opts ...llm.Option) llm.Client {
	if model == "" {
		logger.Info("no model configured, using scripted fallback", "purpose", purpose)
		return nil
	}
	client, err := llm.FromModel(model, keys, opts...)
	if err != nil {
		logger.Warn("model unavailable, using scripted fallback", "purpose", purpose, "model", model, "error", err)
		return nil
	}
	return client
}
