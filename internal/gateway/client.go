// Package gateway talks to the three AI proxy endpoints.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upitquest/internal/domain"
)

const scopeName = "upitquest/internal/gateway"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const (
	PathGenerateMessage = "/api/generate-message"
	PathTextToSpeech    = "/api/text-to-speech"
	PathSpeechToText    = "/api/speech-to-text"

	HeaderAPIKey = "x-api-key"

	AudioFileName = "audio.wav"
)

const (
	opCompleteChat     = "complete chat"
	opSynthesizeSpeech = "synthesize speech"
	opTranscribeSpeech = "transcribe speech"
)

// Config controls the proxy location and request timeout.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements ports.Gateway over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
					return operationName + " " + request.URL.Path
				}),
			),
		},
	}
}

type generateMessageRequest struct {
	Messages []domain.Turn `json:"messages"`
}

type textToSpeechRequest struct {
	Text string `json:"text"`
}

type speechToTextResponse struct {
	Transcript *string `json:"transcript"`
}

// CompleteChat posts the wire conversation and decodes the reply turn.
func (c *Client) CompleteChat(ctx context.Context, apiKey string, messages []domain.Turn) (domain.Turn, error) {
	ctx, span := tracer.Start(ctx, opCompleteChat, trace.WithAttributes(attribute.Int("request.messages", len(messages))))
	defer span.End()

	if strings.TrimSpace(apiKey) == "" {
		return domain.Turn{}, domain.ErrMissingCredential
	}

	body, err := sonic.Marshal(generateMessageRequest{Messages: messages})
	if err != nil {
		return domain.Turn{}, fail(span, &domain.GatewayError{Op: opCompleteChat, Err: fmt.Errorf("error marshalling JSON: %w", err)})
	}

	req, err := c.newRequest(ctx, PathGenerateMessage, apiKey, bytes.NewReader(body))
	if err != nil {
		return domain.Turn{}, fail(span, &domain.GatewayError{Op: opCompleteChat, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")

	payload, err := c.do(req, opCompleteChat, span)
	if err != nil {
		return domain.Turn{}, fail(span, err)
	}

	var turn domain.Turn
	if err := sonic.Unmarshal(payload, &turn); err != nil {
		return domain.Turn{}, fail(span, &domain.GatewayError{Op: opCompleteChat, Err: fmt.Errorf("malformed reply: %w", err)})
	}
	if !turn.Role.Valid() {
		return domain.Turn{}, fail(span, &domain.GatewayError{Op: opCompleteChat, Err: fmt.Errorf("malformed reply: unknown role %q", turn.Role)})
	}
	return turn, nil
}

// SynthesizeSpeech returns the encoded audio for text.
func (c *Client) SynthesizeSpeech(ctx context.Context, apiKey string, text string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, opSynthesizeSpeech, trace.WithAttributes(attribute.Int("request.text_length", len(text))))
	defer span.End()

	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ErrMissingCredential
	}

	body, err := sonic.Marshal(textToSpeechRequest{Text: text})
	if err != nil {
		return nil, fail(span, &domain.GatewayError{Op: opSynthesizeSpeech, Err: fmt.Errorf("error marshalling JSON: %w", err)})
	}

	req, err := c.newRequest(ctx, PathTextToSpeech, apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, fail(span, &domain.GatewayError{Op: opSynthesizeSpeech, Err: err})
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")

	audio, err := c.do(req, opSynthesizeSpeech, span)
	if err != nil {
		return nil, fail(span, err)
	}
	if len(audio) == 0 {
		return nil, fail(span, &domain.GatewayError{Op: opSynthesizeSpeech, Err: errors.New("empty audio payload")})
	}
	span.SetAttributes(attribute.Int("response.audio_bytes", len(audio)))
	return audio, nil
}

// TranscribeSpeech uploads a WAV recording and returns its transcript.
func (c *Client) TranscribeSpeech(ctx context.Context, apiKey string, audio []byte) (string, error) {
	ctx, span := tracer.Start(ctx, opTranscribeSpeech, trace.WithAttributes(attribute.Int("request.audio_bytes", len(audio))))
	defer span.End()

	if strings.TrimSpace(apiKey) == "" {
		return "", domain.ErrMissingCredential
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", AudioFileName)
	if err != nil {
		return "", fail(span, &domain.GatewayError{Op: opTranscribeSpeech, Err: fmt.Errorf("failed to create form file: %w", err)})
	}
	if _, err := part.Write(audio); err != nil {
		return "", fail(span, &domain.GatewayError{Op: opTranscribeSpeech, Err: fmt.Errorf("failed to write audio data: %w", err)})
	}
	if err := writer.Close(); err != nil {
		return "", fail(span, &domain.GatewayError{Op: opTranscribeSpeech, Err: fmt.Errorf("failed to close multipart writer: %w", err)})
	}

	req, err := c.newRequest(ctx, PathSpeechToText, apiKey, &buf)
	if err != nil {
		return "", fail(span, &domain.GatewayError{Op: opTranscribeSpeech, Err: err})
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	payload, err := c.do(req, opTranscribeSpeech, span)
	if err != nil {
		return "", fail(span, err)
	}

	var response speechToTextResponse
	if err := sonic.Unmarshal(payload, &response); err != nil {
		return "", fail(span, &domain.GatewayError{Op: opTranscribeSpeech, Err: fmt.Errorf("malformed reply: %w", err)})
	}
	if response.Transcript == nil {
		return "", fail(span, &domain.GatewayError{Op: opTranscribeSpeech, Err: errors.New("malformed reply: missing transcript")})
	}
	return *response.Transcript, nil
}

func (c *Client) newRequest(ctx context.Context, path string, apiKey string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set(HeaderAPIKey, apiKey)
	return req, nil
}

func (c *Client) do(req *http.Request, op string, span trace.Span) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: fmt.Errorf("error sending request: %w", err)}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("error reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(payload))
		if detail == "" {
			detail = resp.Status
		}
		return nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(detail)}
	}
	return payload, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("gateway request failed", "error", err)
	return err
}
