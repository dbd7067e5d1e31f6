package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"upitquest/internal/domain"
)

// Backend performs the provider calls behind the proxy endpoints.
type Backend interface {
	Chat(ctx context.Context, apiKey string, messages []domain.Turn) (string, error)
	Speech(ctx context.Context, apiKey string, text string) ([]byte, error)
	Transcribe(ctx context.Context, apiKey string, filename string, audio []byte) (string, error)
}

// FileTranscriber transcribes a whole recording with server-side credentials.
type FileTranscriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// OpenAIConfig selects the OpenAI endpoint and models.
type OpenAIConfig struct {
	BaseURL   string
	ChatModel string
	TTSModel  string
	TTSVoice  string
	STTModel  string
}

// OpenAIBackend builds a client per request from the caller's key.
type OpenAIBackend struct {
	cfg         OpenAIConfig
	transport   http.RoundTripper
	transcriber FileTranscriber
}

// NewOpenAIBackend returns an OpenAI backend. A non-nil transcriber takes
// over speech-to-text.
func NewOpenAIBackend(cfg OpenAIConfig, transcriber FileTranscriber) *OpenAIBackend {
	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT4oMini
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = string(openai.TTSModel1)
	}
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = string(openai.VoiceNova)
	}
	if cfg.STTModel == "" {
		cfg.STTModel = openai.Whisper1
	}
	return &OpenAIBackend{
		cfg:         cfg,
		transport:   otelhttp.NewTransport(http.DefaultTransport),
		transcriber: transcriber,
	}
}

func (b *OpenAIBackend) client(apiKey string) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(b.cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	clientCfg.HTTPClient = &http.Client{Transport: b.transport}
	return openai.NewClientWithConfig(clientCfg)
}

func (b *OpenAIBackend) Chat(ctx context.Context, apiKey string, messages []domain.Turn) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    b.cfg.ChatModel,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, turn := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    convertRole(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := b.client(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *OpenAIBackend) Speech(ctx context.Context, apiKey string, text string) ([]byte, error) {
	resp, err := b.client(apiKey).CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(b.cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(b.cfg.TTSVoice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return audio, nil
}

func (b *OpenAIBackend) Transcribe(ctx context.Context, apiKey string, filename string, audio []byte) (string, error) {
	if b.transcriber != nil {
		transcript, err := b.transcriber.Transcribe(ctx, audio)
		if err != nil {
			return "", fmt.Errorf("transcription failed: %w", err)
		}
		return transcript, nil
	}

	resp, err := b.client(apiKey).CreateTranscription(ctx, openai.AudioRequest{
		Model:    b.cfg.STTModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func convertRole(role domain.Role) string {
	switch role {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant, domain.RoleQuestion:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
