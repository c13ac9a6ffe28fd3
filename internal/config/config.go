package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all interview room environment variables.
const EnvPrefix = "INTERVIEW_ROOM_"

const (
	CaptureDeepgram = "deepgram"
	CaptureGoogle   = "google"
	CaptureNone     = "none"
)

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	Client    Client    `yaml:"client"`
	Speech    Speech    `yaml:"speech"`
	DevServer DevServer `yaml:"devserver"`

	// Secrets, env vars only.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	RedisPassword   string `yaml:"-"`
}

type Client struct {
	APIBaseURL     string `yaml:"api_base_url"`
	WSURL          string `yaml:"ws_url"`
	UserID         int64  `yaml:"user_id"`
	ConnectTimeout string `yaml:"connect_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
	AutoSendSpeech *bool  `yaml:"auto_send_speech"`
	LogLevel       string `yaml:"log_level"`
}

type Speech struct {
	CaptureProvider string  `yaml:"capture_provider"`
	Language        string  `yaml:"language"`
	NoSpeechTimeout string  `yaml:"no_speech_timeout"`
	MicSampleRate   int     `yaml:"mic_sample_rate"`
	MicSampleRates  []int   `yaml:"mic_sample_rates"`
	TTSModel        string  `yaml:"tts_model"`
	TTSVoice        string  `yaml:"tts_voice"`
	TTSSpeed        float64 `yaml:"tts_speed"`
	CaptureAudioDir string  `yaml:"capture_audio_dir"`
}

type DevServer struct {
	Addr                  string `yaml:"addr"`
	DBPath                string `yaml:"db_path"`
	InterviewerModel      string `yaml:"interviewer_model"`
	FeedbackModel         string `yaml:"feedback_model"`
	MaxQuestions          int    `yaml:"max_questions"`
	RedisAddr             string `yaml:"redis_addr"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
}

func defaults() Config {
	autoSend := true
	return Config{
		Client: Client{
			APIBaseURL:     "http://localhost:8080/api",
			WSURL:          "ws://localhost:8080/ws/interview",
			ConnectTimeout: "15s",
			RequestTimeout: "10s",
			AutoSendSpeech: &autoSend,
			LogLevel:       "info",
		},
		Speech: Speech{
			CaptureProvider: CaptureDeepgram,
			Language:        "en-US",
			NoSpeechTimeout: "8s",
			MicSampleRate:   16000,
			MicSampleRates:  []int{48000, 44100, 32000, 24000},
			TTSModel:        "tts-1",
			TTSVoice:        "alloy",
			TTSSpeed:        0.9,
		},
		DevServer: DevServer{
			Addr:                  ":8080",
			DBPath:                "data/interview-room.db",
			MaxQuestions:          5,
			GoogleCredentialsFile: "./service-account.json",
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func (c *Config) ParsedConnectTimeout() time.Duration {
	return parseDuration(c.Client.ConnectTimeout, 15*time.Second)
}

func (c *Config) ParsedRequestTimeout() time.Duration {
	return parseDuration(c.Client.RequestTimeout, 10*time.Second)
}

// ParsedNoSpeechTimeout returns how long a capture may stay silent,
// falling back to 8s if the value is invalid.
func (c *Config) ParsedNoSpeechTimeout() time.Duration {
	return parseDuration(c.Speech.NoSpeechTimeout, 8*time.Second)
}

// AutoSendSpeech reports whether finished transcripts are submitted directly.
func (c *Config) AutoSendSpeech() bool {
	return c.Client.AutoSendSpeech == nil || *c.Client.AutoSendSpeech
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.Speech.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.Speech.MicSampleRate)
	combined = append(combined, c.Speech.MicSampleRates...)
	combined = append(combined, hardcoded...)

	return dedupeRates(combined)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	str := map[string]*string{
		"API_BASE_URL":            &cfg.Client.APIBaseURL,
		"WS_URL":                  &cfg.Client.WSURL,
		"CONNECT_TIMEOUT":         &cfg.Client.ConnectTimeout,
		"REQUEST_TIMEOUT":         &cfg.Client.RequestTimeout,
		"LOG_LEVEL":               &cfg.Client.LogLevel,
		"CAPTURE_PROVIDER":        &cfg.Speech.CaptureProvider,
		"LANGUAGE":                &cfg.Speech.Language,
		"NO_SPEECH_TIMEOUT":       &cfg.Speech.NoSpeechTimeout,
		"TTS_MODEL":               &cfg.Speech.TTSModel,
		"TTS_VOICE":               &cfg.Speech.TTSVoice,
		"CAPTURE_AUDIO_DIR":       &cfg.Speech.CaptureAudioDir,
		"ADDR":                    &cfg.DevServer.Addr,
		"DB_PATH":                 &cfg.DevServer.DBPath,
		"INTERVIEWER_MODEL":       &cfg.DevServer.InterviewerModel,
		"FEEDBACK_MODEL":          &cfg.DevServer.FeedbackModel,
		"REDIS_ADDR":              &cfg.DevServer.RedisAddr,
		"GDRIVE_FOLDER_ID":        &cfg.DevServer.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.DevServer.GoogleCredentialsFile,
	}
	for key, dst := range str {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "USER_ID"); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			cfg.Client.UserID = id
		}
	}
	if v := os.Getenv(EnvPrefix + "AUTO_SEND_SPEECH"); v != "" {
		if on, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Client.AutoSendSpeech = &on
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.Speech.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.Speech.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "TTS_SPEED"); v != "" {
		if speed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && speed > 0 {
			cfg.Speech.TTSSpeed = speed
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_QUESTIONS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.DevServer.MaxQuestions = n
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.RedisPassword = os.Getenv(EnvPrefix + "REDIS_PASSWORD")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Speech.CaptureProvider {
	case CaptureDeepgram:
		if cfg.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured, voice answers are disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
		}
	case CaptureGoogle, CaptureNone:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown capture_provider %q, voice answers are disabled.", cfg.Speech.CaptureProvider))
		cfg.Speech.CaptureProvider = CaptureNone
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured, questions will not be read aloud. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if cfg.Client.UserID <= 0 {
		warnings = append(warnings, "user_id not configured, creating interviews is disabled. Set "+EnvPrefix+"USER_ID.")
	}

	durations := []struct {
		name, value, fallback string
	}{
		{"connect_timeout", cfg.Client.ConnectTimeout, "15s"},
		{"request_timeout", cfg.Client.RequestTimeout, "10s"},
		{"no_speech_timeout", cfg.Speech.NoSpeechTimeout, "8s"},
	}
	for _, d := range durations {
		if parsed, err := time.ParseDuration(d.value); err != nil || parsed <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using default %s.", d.name, d.value, d.fallback))
		}
	}

	if cfg.DevServer.MaxQuestions <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid max_questions %d, using default 5.", cfg.DevServer.MaxQuestions))
		cfg.DevServer.MaxQuestions = 5
	}

	return warnings
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	rates := make([]int, 0, len(parts))
	for _, part := range parts {
		rate, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		rates = append(rates, rate)
	}
	return dedupeRates(rates)
}

func dedupeRates(rates []int) []int {
	seen := make(map[int]struct{}, len(rates))
	result := make([]int, 0, len(rates))
	for _, rate := range rates {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}
