// Package proxy serves the AI endpoints the desktop client talks to.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	"upitquest/internal/domain"
)

const scopeName = "upitquest/internal/proxy"

var logger = otelslog.NewLogger(scopeName)

const (
	pathGenerateMessage = "/api/generate-message"
	pathTextToSpeech    = "/api/text-to-speech"
	pathSpeechToText    = "/api/speech-to-text"
	pathHealthz         = "/healthz"
	pathMetrics         = "/metrics"

	headerAPIKey = "x-api-key"

	defaultAudioFileName = "audio.wav"
	maxAudioBytes        = 25 << 20
	readHeaderTimeout    = 10 * time.Second
)

// DefaultSystemPrompt frames the assistant as a technical interviewer.
const DefaultSystemPrompt = "You are Clara, a friendly technical interviewer on Up It Quest. " +
	"Each user message contains what the candidate said and the current contents of their code editor. " +
	"Guide them through the current coding question: ask clarifying questions, give hints rather than full solutions, " +
	"and comment on correctness and complexity of their code. Keep replies short and conversational because they are read aloud."

// Config controls proxy behavior independent of the provider.
type Config struct {
	SystemPrompt string
}

// Server wraps the echo router with its metrics registry.
type Server struct {
	echo    *echo.Echo
	backend Backend
	prompt  string
	metrics *metrics
	http    *http.Server
}

func New(cfg Config, backend Backend) *Server {
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	s := &Server{
		echo:    echo.New(),
		backend: backend,
		prompt:  prompt,
		metrics: newMetrics(),
	}

	e := s.echo
	s.http = &http.Server{Handler: e, ReadHeaderTimeout: readHeaderTimeout}
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(s.metrics.middleware)

	e.GET(pathHealthz, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET(pathMetrics, echo.WrapHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := e.Group("/api", s.requireAPIKey)
	api.POST("/generate-message", s.generateMessage)
	api.POST("/text-to-speech", s.textToSpeech)
	api.POST("/speech-to-text", s.speechToText)
	return s
}

// Handler exposes the router for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve blocks serving on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy server stopped: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type generateMessageRequest struct {
	Messages []domain.Turn `json:"messages"`
}

type textToSpeechRequest struct {
	Text string `json:"text"`
}

type speechToTextResponse struct {
	Transcript string `json:"transcript"`
}

func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if strings.TrimSpace(c.Request().Header.Get(headerAPIKey)) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing x-api-key header")
		}
		return next(c)
	}
}

func apiKey(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(headerAPIKey))
}

func (s *Server) generateMessage(c echo.Context) error {
	var req generateMessageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages must not be empty")
	}

	reply, err := s.backend.Chat(c.Request().Context(), apiKey(c), s.withSystemPrompt(req.Messages))
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, domain.Turn{Role: domain.RoleAssistant, Content: reply})
}

func (s *Server) textToSpeech(c echo.Context) error {
	var req textToSpeechRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text must not be empty")
	}

	audio, err := s.backend.Speech(c.Request().Context(), apiKey(c), req.Text)
	if err != nil {
		return upstreamError(err)
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) speechToText(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required").SetInternal(err)
	}
	if header.Size > maxAudioBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "audio file is too large")
	}

	file, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded audio").SetInternal(err)
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded audio").SetInternal(err)
	}
	if len(audio) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "uploaded audio is empty")
	}

	filename := header.Filename
	if strings.TrimSpace(filename) == "" {
		filename = defaultAudioFileName
	}

	transcript, err := s.backend.Transcribe(c.Request().Context(), apiKey(c), filename, audio)
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, speechToTextResponse{Transcript: transcript})
}

// withSystemPrompt prepends the interviewer prompt and maps question turns
// to assistant turns, which is how the provider should see them.
func (s *Server) withSystemPrompt(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(turns)+1)
	out = append(out, domain.Turn{Role: domain.RoleSystem, Content: s.prompt})
	for _, turn := range turns {
		if turn.Role == domain.RoleQuestion {
			turn.Role = domain.RoleAssistant
		}
		out = append(out, turn)
	}
	return out
}

func upstreamError(err error) error {
	logger.Warn("upstream request failed", "error", err)
	return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
}

// handleError renders every failure as {error}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorResponse{Error: message})
	}
	if err != nil {
		logger.Error("failed to write error response", "error", err)
	}
}
