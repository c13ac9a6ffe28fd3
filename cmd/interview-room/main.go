package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sjawhar/interview-room/internal/audio"
	"github.com/sjawhar/interview-room/internal/channel"
	"github.com/sjawhar/interview-room/internal/config"
	"github.com/sjawhar/interview-room/internal/interview"
	"github.com/sjawhar/interview-room/internal/session"
	"github.com/sjawhar/interview-room/internal/speech"
	"github.com/sjawhar/interview-room/internal/speech/deepgram"
	"github.com/sjawhar/interview-room/internal/speech/gcpspeech"
	"github.com/sjawhar/interview-room/internal/speech/openaitts"
	"github.com/sjawhar/interview-room/internal/transcript"
)

func main() {
	configPath := flag.String("config", "interview-room.yaml", "path to YAML config file")
	interviewID := flag.Int64("interview", 0, "resume an existing interview instead of creating one")
	role := flag.String("role", "Software Engineer", "role to interview for")
	experience := flag.String("experience", "", "years of experience, e.g. \"3 years\"")
	difficulty := flag.String("difficulty", "medium", "easy, medium or hard")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn("config", "warning", w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	service := interview.NewClient(cfg.Client.APIBaseURL,
		interview.WithHTTPClient(&http.Client{Timeout: cfg.ParsedRequestTimeout()}),
		interview.WithLogger(logger),
	)

	id := *interviewID
	if id == 0 {
		iv, err := service.Create(ctx, interview.CreateRequest{
			Role:       *role,
			Experience: *experience,
			Difficulty: *difficulty,
			UserID:     cfg.Client.UserID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create interview: %v\n", err)
			os.Exit(1)
		}
		id = iv.ID
		fmt.Printf("Created interview %d for %s.\n", id, iv.Role)
	}

	bridge, teardown := buildSpeech(ctx, &cfg, id, logger)
	defer teardown()

	out := newView(os.Stdout)
	newController := func() *session.Controller {
		ch := channel.New(cfg.Client.WSURL,
			channel.WithConnectTimeout(cfg.ParsedConnectTimeout()),
			channel.WithLogger(logger),
		)
		c := session.NewController(id, service, ch, bridge,
			session.WithAutoSendSpeech(cfg.AutoSendSpeech()),
			session.WithLogger(logger.With("interview_id", id)),
		)
		c.OnChange(out.render)
		return c
	}

	ctrl := newController()
	defer func() { ctrl.Close() }()

	if !bridge.CanCapture() {
		fmt.Println("Voice input is not available. Type your answers.")
	}
	if err := ctrl.Start(ctx); err != nil {
		logger.Debug("start failed", "error", err)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	ended := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			switch cmd := strings.TrimSpace(line); cmd {
			case "":
			case "/help":
				fmt.Println(helpText)
			case "/mic":
				if err := ctrl.StartCapture(ctx); errors.Is(err, session.ErrNotActive) {
					fmt.Println("Not connected. Voice input is only available during the interview.")
				}
			case "/stop-mic":
				ctrl.StopCapture()
			case "/quiet":
				ctrl.CancelSpeaking()
			case "/dismiss":
				ctrl.DismissNotice()
			case "/retry":
				if ctrl.State() != session.StateFailed {
					fmt.Println("Nothing to retry.")
					continue
				}
				ctrl.Close()
				ctrl = newController()
				if err := ctrl.Start(ctx); err != nil {
					logger.Debug("retry failed", "error", err)
				}
			case "/dashboard":
				break loop
			case "/end":
				_ = ctrl.End(context.WithoutCancel(ctx))
				ended = true
				break loop
			default:
				if err := ctrl.Send(cmd); errors.Is(err, session.ErrNotActive) {
					fmt.Println("Not connected. Your answer was not sent.")
				}
			}
		}
	}

	ctrl.Close()
	if !ended {
		return
	}

	resultCtx, resultCancel := context.WithTimeout(context.Background(), cfg.ParsedRequestTimeout())
	defer resultCancel()
	res := waitForResult(resultCtx, service, id)
	printResult(os.Stdout, transcript.Parse(res.ChatTranscript), res.Feedback, res.FeedbackStatus)
}

// waitForResult polls until feedback settles or ctx expires, returning the
// latest result seen.
func waitForResult(ctx context.Context, service *interview.Client, id int64) interview.Result {
	var last interview.Result
	for {
		res, err := service.Result(ctx, id)
		if err == nil {
			last = res
			if res.FeedbackStatus == "completed" || res.FeedbackStatus == "failed" {
				return res
			}
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(time.Second):
		}
	}
}

// buildSpeech picks the capture and playback backends from config. Missing
// devices or keys leave the bridge text-only.
func buildSpeech(ctx context.Context, cfg *config.Config, interviewID int64, logger *slog.Logger) (*speech.Bridge, func()) {
	var closers []func()
	teardown := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	audioTeardown, err := audio.Init()
	audioOK := err == nil
	if audioOK {
		closers = append(closers, audioTeardown)
	} else {
		logger.Warn("audio unavailable, running text-only", "error", err)
	}

	var recorder *audio.Recorder
	if dir := cfg.Speech.CaptureAudioDir; dir != "" {
		recorder = audio.NewRecorder(dir)
	}

	var capturer speech.Capturer
	switch cfg.Speech.CaptureProvider {
	case config.CaptureDeepgram:
		closers = append(closers, deepgram.InitMicrophone())
		rate := cfg.Speech.MicSampleRate
		if recorder != nil {
			recorder.SetSampleRate(rate)
		}
		opts := []deepgram.Option{deepgram.WithLogger(logger)}
		if recorder != nil {
			opts = append(opts, deepgram.WithClips(recorder, fmt.Sprintf("interview-%d", interviewID)))
		}
		capturer = deepgram.New(deepgram.Config{
			APIKey:     cfg.DeepgramAPIKey,
			Language:   cfg.Speech.Language,
			SampleRate: rate,
		}, deepgram.Microphone{SampleRate: rate}, opts...)
	case config.CaptureGoogle:
		if !audioOK {
			break
		}
		mic, err := audio.OpenMic(cfg.SampleRateCandidates(), 0)
		if err != nil {
			logger.Warn("microphone unavailable", "error", err)
			break
		}
		closers = append(closers, func() { _ = mic.Close() })
		opts := []gcpspeech.Option{gcpspeech.WithLogger(logger)}
		if recorder != nil {
			recorder.SetSampleRate(mic.SampleRate())
			opts = append(opts, gcpspeech.WithRecorder(recorder))
		}
		gc, err := gcpspeech.New(ctx, gcpspeech.Config{
			Language:        cfg.Speech.Language,
			SampleRate:      mic.SampleRate(),
			CredentialsFile: cfg.DevServer.GoogleCredentialsFile,
		}, mic, opts...)
		if err != nil {
			logger.Warn("google speech unavailable", "error", err)
			break
		}
		closers = append(closers, func() { _ = gc.Close() })
		capturer = gc
	}

	var synth speech.Synthesizer
	if audioOK {
		synth = openaitts.New(openaitts.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.Speech.TTSModel,
			Voice:  cfg.Speech.TTSVoice,
			Speed:  cfg.Speech.TTSSpeed,
		}, audio.NewPlayer(openaitts.SampleRate))
	}

	bridge := speech.New(capturer, synth,
		speech.WithNoSpeechTimeout(cfg.ParsedNoSpeechTimeout()),
		speech.WithLogger(logger),
	)
	return bridge, teardown
}
