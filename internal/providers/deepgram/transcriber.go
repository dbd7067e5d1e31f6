// Package deepgram transcribes uploaded recordings through Deepgram's
// streaming listen API.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "upitquest/internal/providers/deepgram"

var logger = otelslog.NewLogger(scopeName)

const (
	defaultAPIBaseURL = "https://api.deepgram.com/v1"
	defaultModel      = "nova-2"
	defaultChunkSize  = 8192
	finalizeTimeout   = 60 * time.Second
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	ChunkSize   int
}

// StreamConfig describes the uploaded audio. Leave Encoding empty for
// containerised audio such as WAV so Deepgram reads the header itself.
type StreamConfig struct {
	Encoding   string
	SampleRate int
	Channels   int
}

// Transcriber implements the proxy's speech-to-text backend.
type Transcriber struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewTranscriber(cfg Config) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Transcriber{cfg: cfg, dialer: websocket.DefaultDialer}
}

// Transcribe streams audio to Deepgram and returns the aggregated final
// transcript.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return "", errors.New("DEEPGRAM_API_KEY is not configured")
	}
	if len(audio) == 0 {
		return "", errors.New("no audio to transcribe")
	}

	wsURL, err := buildListenURL(t.cfg, StreamConfig{})
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.cfg.APIKey)

	conn, _, err := t.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	sessionCtx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	session := startSession(sessionCtx, conn, audio, t.cfg.ChunkSize)
	streamErr := session.Wait()

	raw := session.Transcript()
	if streamErr != nil {
		if raw != "" {
			logger.Warn("dropping partial transcript after stream failure", "error", streamErr, "chars", len(raw))
		}
		return "", streamErr
	}
	if raw != "" {
		return raw, nil
	}
	logger.Info("deepgram returned no transcript", "bytes", len(audio))
	return "", nil
}

func buildListenURL(providerCfg Config, streamCfg StreamConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultAPIBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	if streamCfg.Encoding != "" {
		if streamCfg.SampleRate <= 0 {
			streamCfg.SampleRate = 16000
		}
		if streamCfg.Channels <= 0 {
			streamCfg.Channels = 1
		}
		query.Set("encoding", streamCfg.Encoding)
		query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
		query.Set("channels", strconv.Itoa(streamCfg.Channels))
	}
	query.Set("interim_results", "false")
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
