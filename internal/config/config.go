package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the desktop app, the TUI and the proxy.
type Config struct {
	OpenAI      OpenAIConfig
	Deepgram    DeepgramConfig
	Proxy       ProxyConfig
	Gateway     GatewayConfig
	Audio       AudioConfig
	Playback    PlaybackConfig
	Speech      SpeechConfig
	Preferences PreferencesConfig
}

type OpenAIConfig struct {
	APIBaseURL string
	ChatModel  string
	TTSModel   string
	TTSVoice   string
	STTModel   string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type ProxyConfig struct {
	Addr         string
	SystemPrompt string
	STTProvider  string
}

type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type PlaybackConfig struct {
	PlayerCommand string
	Volume        float64
	TalkInterval  time.Duration
}

type SpeechConfig struct {
	RulesPath      string
	IterationLimit int
}

type PreferencesConfig struct {
	Path string
}

const (
	STTProviderOpenAI   = "openai"
	STTProviderDeepgram = "deepgram"
)

// Load reads an optional .env file, then resolves configuration from
// environment variables and sensible defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "upitquest")

	cfg := Config{
		OpenAI: OpenAIConfig{
			APIBaseURL: envOrDefault("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:  envOrDefault("UPITQUEST_CHAT_MODEL", "gpt-4o-mini"),
			TTSModel:   envOrDefault("UPITQUEST_TTS_MODEL", "tts-1"),
			TTSVoice:   envOrDefault("UPITQUEST_TTS_VOICE", "nova"),
			STTModel:   envOrDefault("UPITQUEST_STT_MODEL", "whisper-1"),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Proxy: ProxyConfig{
			Addr:         envOrDefault("UPITQUEST_PROXY_ADDR", "127.0.0.1:0"),
			SystemPrompt: strings.TrimSpace(os.Getenv("UPITQUEST_SYSTEM_PROMPT")),
			STTProvider:  strings.ToLower(envOrDefault("UPITQUEST_STT_PROVIDER", STTProviderOpenAI)),
		},
		Gateway: GatewayConfig{
			BaseURL: strings.TrimSpace(os.Getenv("UPITQUEST_GATEWAY_URL")),
			Timeout: time.Duration(envOrDefaultInt("UPITQUEST_GATEWAY_TIMEOUT_MS", 90000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("UPITQUEST_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("UPITQUEST_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     firstNonEmpty(os.Getenv("UPITQUEST_AUDIO_INPUT_DEVICE"), "default"),
			SampleRate:      envOrDefaultInt("UPITQUEST_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("UPITQUEST_CHANNELS", 1),
			ChunkSize:       envOrDefaultInt("UPITQUEST_AUDIO_CHUNK_SIZE", 4096),
		},
		Playback: PlaybackConfig{
			PlayerCommand: envOrDefault("UPITQUEST_FFPLAY_COMMAND", "ffplay"),
			Volume:        envOrDefaultFloat("UPITQUEST_PLAYBACK_VOLUME", 0.5),
			TalkInterval:  time.Duration(envOrDefaultInt("UPITQUEST_TALK_INTERVAL_MS", 200)) * time.Millisecond,
		},
		Speech: SpeechConfig{
			RulesPath:      envOrDefault("UPITQUEST_SPEECH_RULES_FILE", filepath.Join(configDir, "speech.rules")),
			IterationLimit: envOrDefaultInt("UPITQUEST_RULE_ITERATION_LIMIT", 30),
		},
		Preferences: PreferencesConfig{
			Path: envOrDefault("UPITQUEST_PREFERENCES_FILE", filepath.Join(configDir, "preferences.yaml")),
		},
	}

	if cfg.Proxy.STTProvider != STTProviderDeepgram {
		cfg.Proxy.STTProvider = STTProviderOpenAI
	}
	// Zero disables the client timeout.
	if cfg.Gateway.Timeout < 0 {
		cfg.Gateway.Timeout = 90 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if math.IsNaN(cfg.Playback.Volume) || cfg.Playback.Volume < 0 || cfg.Playback.Volume > 1 {
		cfg.Playback.Volume = 0.5
	}
	if cfg.Playback.TalkInterval <= 0 {
		cfg.Playback.TalkInterval = 200 * time.Millisecond
	}
	if cfg.Speech.IterationLimit <= 0 {
		cfg.Speech.IterationLimit = 30
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
